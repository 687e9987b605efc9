package custom

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Command is the plug-in capability set: construction with an optional
// args string, then one Execute per operation. Args parsing is the
// plug-in's concern; the core passes the raw string unchanged.
type Command interface {
	Init(args string) error
	Execute(ctx context.Context, rdb redis.UniversalClient) error
}

// The registry dispatches over a compile-time enumeration keyed by the
// basename of --custom-command-file, so a statically built plug-in is
// selected the same way a dynamically loaded one would be.
var registry = map[string]func() Command{
	"hmget_batch": func() Command { return &hmgetBatch{} },
	"set_default": func() Command { return &setDefault{} },
}

// Names lists the available commands.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Load resolves a command by path basename and initializes it with the raw
// args string.
func Load(path, args string) (Command, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown custom command %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	cmd := ctor()
	if err := cmd.Init(args); err != nil {
		return nil, fmt.Errorf("custom command %q: %w", name, err)
	}
	return cmd, nil
}
