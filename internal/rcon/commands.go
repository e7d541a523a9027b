package rcon

import (
	"context"
	"fmt"
)

// The fixed vanilla command strings the dashboard relies on. Response
// parsing in parse.go assumes these exact commands were issued.

// List runs the "list" command and returns the raw player list response.
func (c *Client) List(ctx context.Context) (string, error) {
	return c.Send(ctx, "list")
}

// EntityPos queries an entity's position NBT.
func (c *Client) EntityPos(ctx context.Context, name string) (string, error) {
	return c.Send(ctx, fmt.Sprintf("data get entity %s Pos", name))
}

// EntityDimension queries an entity's dimension NBT.
func (c *Client) EntityDimension(ctx context.Context, name string) (string, error) {
	return c.Send(ctx, fmt.Sprintf("data get entity %s Dimension", name))
}

// Ban bans a player by name with an optional reason.
func (c *Client) Ban(ctx context.Context, name, reason string) (string, error) {
	if reason == "" {
		return c.Send(ctx, fmt.Sprintf("ban %s", name))
	}
	return c.Send(ctx, fmt.Sprintf("ban %s %s", name, reason))
}

// Pardon lifts a name ban.
func (c *Client) Pardon(ctx context.Context, name string) (string, error) {
	return c.Send(ctx, fmt.Sprintf("pardon %s", name))
}

// BanIP bans an IP address.
func (c *Client) BanIP(ctx context.Context, ip, reason string) (string, error) {
	if reason == "" {
		return c.Send(ctx, fmt.Sprintf("ban-ip %s", ip))
	}
	return c.Send(ctx, fmt.Sprintf("ban-ip %s %s", ip, reason))
}

// PardonIP lifts an IP ban.
func (c *Client) PardonIP(ctx context.Context, ip string) (string, error) {
	return c.Send(ctx, fmt.Sprintf("pardon-ip %s", ip))
}

// Kick disconnects a player with an optional reason.
func (c *Client) Kick(ctx context.Context, name, reason string) (string, error) {
	if reason == "" {
		return c.Send(ctx, fmt.Sprintf("kick %s", name))
	}
	return c.Send(ctx, fmt.Sprintf("kick %s %s", name, reason))
}

// BanListRaw dumps the full ban list.
func (c *Client) BanListRaw(ctx context.Context) (string, error) {
	return c.Send(ctx, "banlist")
}

// WhitelistList dumps the whitelist.
func (c *Client) WhitelistList(ctx context.Context) (string, error) {
	return c.Send(ctx, "whitelist list")
}

// WhitelistAdd adds a player to the whitelist.
func (c *Client) WhitelistAdd(ctx context.Context, name string) (string, error) {
	return c.Send(ctx, fmt.Sprintf("whitelist add %s", name))
}

// WhitelistRemove removes a player from the whitelist.
func (c *Client) WhitelistRemove(ctx context.Context, name string) (string, error) {
	return c.Send(ctx, fmt.Sprintf("whitelist remove %s", name))
}

// Teleport moves a player to absolute coordinates.
func (c *Client) Teleport(ctx context.Context, name string, x, y, z float64) (string, error) {
	return c.Send(ctx, fmt.Sprintf("tp %s %g %g %g", name, x, y, z))
}

// TeleportIn moves a player to coordinates inside a specific dimension.
func (c *Client) TeleportIn(ctx context.Context, name, dimension string, x, y, z float64) (string, error) {
	return c.Send(ctx, fmt.Sprintf("execute in %s run tp %s %g %g %g", dimension, name, x, y, z))
}

// TeleportToPlayer moves one player to another.
func (c *Client) TeleportToPlayer(ctx context.Context, source, target string) (string, error) {
	return c.Send(ctx, fmt.Sprintf("tp %s %s", source, target))
}
