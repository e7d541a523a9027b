package rcon

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/leka/craftwatch/internal/domain"
)

// Parsers for the semi-structured text the vanilla server returns. Each
// one is a pure function over the raw response; callers decide what to
// log and which failures are fatal.

var (
	// ErrNoMatch means the response did not resemble the expected format
	// at all. Callers usually log a warning and carry on with an empty
	// result.
	ErrNoMatch = errors.New("response did not match expected format")

	// ErrCountMismatch means the declared count disagrees with the
	// parsed entries. For the whitelist this guards against truncated
	// responses and is treated as a hard failure.
	ErrCountMismatch = errors.New("declared count does not match parsed entries")
)

var (
	whitelistRe = regexp.MustCompile(`There are (\d+) whitelisted player\(s\): (.+)`)
	banCountRe  = regexp.MustCompile(`There are (\d+) ban\(s\):`)
	banEntryRe  = regexp.MustCompile(`(?m)^(\S+) was banned by ([^:]+): (.+)$`)
	ipv4Re      = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}$`)
	uuidRe      = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	dimensionRe = regexp.MustCompile(`"([^"]+)"`)
)

// ListResult is the parsed "list" response.
type ListResult struct {
	Online int
	Max    int
	Names  []string
}

// ParseList parses the player list summary, e.g.
//
//	There are 3 of a max of 20 players online: Leka, toma, lazar
//
// The online and max counts sit at fixed whitespace token positions 2 and
// 7. A missing name list (no colon) means zero players, but missing or
// non-numeric count tokens are an error: defaulting them to zero would
// mask a desynced server.
func ParseList(response string) (ListResult, error) {
	if !strings.Contains(response, "players online") {
		return ListResult{}, fmt.Errorf("parsing list response %q: %w", response, ErrNoMatch)
	}

	parts := strings.Fields(response)
	if len(parts) < 8 {
		return ListResult{}, fmt.Errorf("list response has %d tokens, want at least 8: %w", len(parts), ErrNoMatch)
	}

	online, err := strconv.Atoi(parts[2])
	if err != nil {
		return ListResult{}, fmt.Errorf("parsing online count %q: %w", parts[2], err)
	}
	max, err := strconv.Atoi(parts[7])
	if err != nil {
		return ListResult{}, fmt.Errorf("parsing max count %q: %w", parts[7], err)
	}

	result := ListResult{Online: online, Max: max}
	if idx := strings.Index(response, ":"); idx != -1 {
		for _, name := range strings.Split(response[idx+1:], ",") {
			if name = strings.TrimSpace(name); name != "" {
				result.Names = append(result.Names, name)
			}
		}
	}

	return result, nil
}

// ParseWhitelist parses the "whitelist list" response. An unrecognized
// response yields ErrNoMatch (the caller treats that as an empty list).
// A recognized response whose name count disagrees with the declared
// count yields ErrCountMismatch; unlike the ban list this is fatal
// because it indicates a truncated response.
func ParseWhitelist(response string) ([]string, error) {
	m := whitelistRe.FindStringSubmatch(response)
	if m == nil {
		return nil, ErrNoMatch
	}

	count, _ := strconv.Atoi(m[1])
	var names []string
	for _, name := range strings.Split(m[2], ",") {
		names = append(names, strings.TrimSpace(name))
	}

	if len(names) != count {
		return nil, fmt.Errorf("%w: declared %d, parsed %d", ErrCountMismatch, count, len(names))
	}

	return names, nil
}

// IsIPv4 reports whether the identifier looks like a dotted-quad IPv4
// address, which selects the ban-ip/pardon-ip command family.
func IsIPv4(identifier string) bool {
	return ipv4Re.MatchString(identifier)
}

// ParseBanList parses the "banlist" response. The declared count and the
// per-line entries are extracted independently; a disagreement between
// them is visible through DeclaredCount vs Total and is the caller's to
// log, since partial ban list truncation is tolerated.
func ParseBanList(response string) domain.BanList {
	list := domain.BanList{}

	if m := banCountRe.FindStringSubmatch(response); m != nil {
		list.DeclaredCount, _ = strconv.Atoi(m[1])
	}

	for _, m := range banEntryRe.FindAllStringSubmatch(response, -1) {
		entry := domain.BanEntry{
			Identifier: m[1],
			BannedBy:   strings.TrimSpace(m[2]),
			Message:    strings.TrimSpace(m[3]),
		}
		// Classification priority: IPv4, then UUID, then plain username.
		switch {
		case ipv4Re.MatchString(entry.Identifier):
			list.IPs = append(list.IPs, entry)
		case uuidRe.MatchString(entry.Identifier):
			list.UUIDs = append(list.UUIDs, entry)
		default:
			list.Users = append(list.Users, entry)
		}
	}

	return list
}

// ParsePosition extracts x,y,z from an entity Pos response, e.g.
//
//	Leka has the following entity data: [123.0d, 64.0d, -321.5d]
//
// The trailing "d" double suffix is stripped per component. Any
// structural deviation reports ok=false rather than an error; position
// is best-effort data.
func ParsePosition(response string) (x, y, z float64, ok bool) {
	open := strings.Index(response, "[")
	if open == -1 {
		return 0, 0, 0, false
	}
	end := strings.Index(response[open:], "]")
	if end == -1 {
		return 0, 0, 0, false
	}

	parts := strings.Split(response[open+1:open+end], ",")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}

	coords := make([]float64, 3)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(part), "d"), 64)
		if err != nil {
			return 0, 0, 0, false
		}
		coords[i] = v
	}

	return coords[0], coords[1], coords[2], true
}

// ParseDimension extracts the quoted dimension identifier from an entity
// Dimension response, e.g.
//
//	Leka has the following entity data: "minecraft:overworld"
//
// Responses without the minecraft namespace marker or without a quoted
// value report ok=false.
func ParseDimension(response string) (string, bool) {
	if !strings.Contains(response, "minecraft:") {
		return "", false
	}
	m := dimensionRe.FindStringSubmatch(response)
	if m == nil {
		return "", false
	}
	return m[1], true
}
