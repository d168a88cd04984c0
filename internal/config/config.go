// Package config loads process settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/lobbysync/internal/engine"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ListenAddr string
	PublicURL  string

	LobbyName  string
	OwnerName  string
	MaxPlayers int
	GameModes  []engine.GameMode

	NegotiationTimeout time.Duration
	DisconnectGrace    time.Duration
	ReconnectDelay     time.Duration
	CountdownDelay     time.Duration
	RetryBackoff       time.Duration
	BroadcastNonces    bool

	AuthSecret  string
	GameAddress string

	HostURL    string
	PlayerName string

	LogLevel string
	LogDev   bool
}

// Load reads .env (if any) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. Every malformed value is reported, not
// just the first.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}
	cfg := &Config{
		ListenAddr: e.str("LISTEN_ADDR", ":8080"),
		PublicURL:  e.str("PUBLIC_URL", "ws://localhost:8080"),

		LobbyName:  e.str("LOBBY_NAME", "Lobby"),
		OwnerName:  e.str("OWNER_NAME", "Host"),
		MaxPlayers: e.integer("MAX_PLAYERS", 8),

		NegotiationTimeout: e.duration("NEGOTIATION_TIMEOUT", 5*time.Second),
		DisconnectGrace:    e.duration("DISCONNECT_GRACE", 500*time.Millisecond),
		ReconnectDelay:     e.duration("RECONNECT_DELAY", time.Second),
		CountdownDelay:     e.duration("COUNTDOWN_DELAY", 10*time.Second),
		RetryBackoff:       e.duration("COUNTDOWN_RETRY_BACKOFF", 5*time.Second),
		BroadcastNonces:    e.boolean("BROADCAST_NONCES", true),

		AuthSecret:  e.str("AUTH_SECRET", ""),
		GameAddress: e.str("GAME_ADDRESS", ""),

		HostURL:    e.str("HOST_URL", "ws://localhost:8080/ws"),
		PlayerName: e.str("PLAYER_NAME", "Player"),

		LogLevel: e.str("LOG_LEVEL", "info"),
		LogDev:   e.boolean("LOG_DEV", false),
	}

	modes, err := ParseGameModes(e.str("GAME_MODES", "duel:2:2,skirmish:2:4,ranked:2:2:auth"))
	e.err = multierr.Append(e.err, err)
	cfg.GameModes = modes

	if cfg.MaxPlayers < 1 {
		e.err = multierr.Append(e.err, fmt.Errorf("%w: MAX_PLAYERS must be positive", ErrInvalid))
	}
	if e.err != nil {
		return nil, e.err
	}
	return cfg, nil
}

// ParseGameModes reads a comma separated list of name:min:max[:auth] entries.
func ParseGameModes(s string) ([]engine.GameMode, error) {
	var modes []engine.GameMode
	seen := map[string]bool{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("%w: game mode %q: want name:min:max[:auth]", ErrInvalid, entry)
		}
		gm := engine.GameMode{Name: parts[0]}
		var err error
		if gm.MinPlayers, err = strconv.Atoi(parts[1]); err != nil {
			return nil, fmt.Errorf("%w: game mode %q: min players: %v", ErrInvalid, entry, err)
		}
		if gm.MaxPlayers, err = strconv.Atoi(parts[2]); err != nil {
			return nil, fmt.Errorf("%w: game mode %q: max players: %v", ErrInvalid, entry, err)
		}
		if len(parts) == 4 {
			if parts[3] != "auth" {
				return nil, fmt.Errorf("%w: game mode %q: unknown flag %q", ErrInvalid, entry, parts[3])
			}
			gm.NeedsAuth = true
		}
		if gm.Name == "" || seen[gm.Name] {
			return nil, fmt.Errorf("%w: game mode %q: empty or duplicate name", ErrInvalid, entry)
		}
		if gm.MinPlayers < 1 || gm.MaxPlayers < gm.MinPlayers {
			return nil, fmt.Errorf("%w: game mode %q: bad player range", ErrInvalid, entry)
		}
		seen[gm.Name] = true
		modes = append(modes, gm)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("%w: no game modes", ErrInvalid)
	}
	return modes, nil
}

type env struct {
	lookup func(string) (string, bool)
	err    error
}

// str returns the variable or fallback when it is unset.
func (e *env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.err = multierr.Append(e.err, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
		return fallback
	}
	return n
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d < 0 {
		e.err = multierr.Append(e.err, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
		return fallback
	}
	return d
}

func (e *env) boolean(key string, fallback bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.err = multierr.Append(e.err, fmt.Errorf("%w: %s=%q", ErrInvalid, key, v))
		return fallback
	}
	return b
}
