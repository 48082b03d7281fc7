// Package vpn wraps the expressvpnctl CLI. The scheduler rotates the exit
// location before each crawl job so scheduled fetches do not hammer the
// platform from one address all day.
package vpn

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrVPNNotConnected = errors.New("VPN not connected")
	ErrVPNConnectFail  = errors.New("failed to connect VPN")
)

// How long Connect waits for the tunnel to report up.
const connectWait = 30 * time.Second

type Config struct {
	ActivationCode string
	AutoConnect    bool
	Region         string
}

type Client struct {
	cfg *Config
}

func New(cfg *Config) *Client {
	return &Client{cfg: cfg}
}

// Status returns the raw expressvpnctl status line.
func (v *Client) Status() (string, error) {
	out, err := exec.Command("expressvpnctl", "status").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (v *Client) IsConnected() bool {
	status, err := v.Status()
	if err != nil {
		return false
	}
	s := strings.ToLower(status)
	return strings.Contains(s, "connected") && !strings.Contains(s, "disconnected")
}

// Connect brings the tunnel up in the configured region and waits for the
// status to flip. No-op when already connected.
func (v *Client) Connect(ctx context.Context) error {
	if v.IsConnected() {
		return nil
	}
	if !v.cfg.AutoConnect {
		return ErrVPNNotConnected
	}

	region := v.cfg.Region
	if region == "" {
		region = "smart"
	}
	if err := exec.CommandContext(ctx, "expressvpnctl", "connect", region).Run(); err != nil {
		return ErrVPNConnectFail
	}
	return v.waitConnected(ctx)
}

func (v *Client) waitConnected(ctx context.Context) error {
	deadline := time.Now().Add(connectWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		if v.IsConnected() {
			return nil
		}
	}
	return ErrVPNConnectFail
}

// Rotate cycles the exit location. When AutoConnect is off the operator
// manages the tunnel themselves, so we only verify it is up.
func (v *Client) Rotate(ctx context.Context) error {
	if !v.cfg.AutoConnect {
		if v.IsConnected() {
			return nil
		}
		return ErrVPNNotConnected
	}
	if v.IsConnected() {
		if err := v.Disconnect(ctx); err != nil {
			return err
		}
	}
	return v.Connect(ctx)
}

func (v *Client) Disconnect(ctx context.Context) error {
	return exec.CommandContext(ctx, "expressvpnctl", "disconnect").Run()
}
