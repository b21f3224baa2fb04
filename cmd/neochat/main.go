// Command neochat opens (or creates) a NeoChat node and prints its identity.
// It can also register a profile, publish it to the relay and fetch queued
// messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat"
	"github.com/opd-ai/neochat/config"
	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/storage"
)

type cliFlags struct {
	configPath   string
	storagePath  string
	username     string
	publish      bool
	pollRelay    bool
	pollDNS      bool
	showMnemonic bool
	timeout      time.Duration
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "neochat.yaml", "Path to the YAML configuration file")
	flag.StringVar(&f.storagePath, "storage", "", "State file path (overrides the configuration)")
	flag.StringVar(&f.username, "register", "", "Register the profile under this username")
	flag.BoolVar(&f.publish, "publish", false, "Publish the profile to the relay")
	flag.BoolVar(&f.pollRelay, "poll-relay", false, "Fetch messages queued at the relay")
	flag.BoolVar(&f.pollDNS, "poll-dns", false, "Fetch a message queued at the DNS tunnel")
	flag.BoolVar(&f.showMnemonic, "mnemonic", false, "Print the storage key recovery phrase")
	flag.DurationVar(&f.timeout, "timeout", 30*time.Second, "Timeout for network operations")
	flag.Parse()
	return f
}

func main() {
	if err := run(parseFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "neochat: %v\n", err)
		os.Exit(1)
	}
}

func run(f cliFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.storagePath != "" {
		cfg.StoragePath = f.storagePath
	}
	logrus.SetLevel(cfg.Level())

	opts, err := neochat.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.OnStateReset = func(result *storage.LoadResult) {
		fmt.Fprintf(os.Stderr, "warning: saved state could not be loaded (%v); a new identity was created\n", result.Err)
	}

	node, err := neochat.New(opts)
	if err != nil {
		return err
	}
	defer node.Close()

	fmt.Printf("id:             %s\n", node.ID())
	fmt.Printf("encryption key: %s\n", node.EncryptionPub())
	fmt.Printf("node hash:      %s\n", node.NodeHash())
	fmt.Printf("state:          %s (%s)\n", node.LoadResult().Outcome, cfg.StoragePath)
	fmt.Printf("dns poll name:  %s\n", dnstunnel.EncodePollAsDNS(node.NodeHash(), cfg.DNSTunnel.BaseDomain))

	if f.showMnemonic {
		phrase, err := node.StorageMnemonic()
		if err != nil {
			return err
		}
		fmt.Printf("recovery:       %s\n", phrase)
	}

	if f.username != "" {
		user, err := node.Register(f.username)
		if err != nil {
			return err
		}
		fmt.Printf("registered:     %s\n", user.Username)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if f.publish {
		if err := node.PublishProfile(ctx); err != nil {
			return fmt.Errorf("publish profile: %w", err)
		}
		fmt.Println("profile published")
	}

	if f.pollRelay {
		msgs, err := node.PollRelay(ctx)
		if err != nil {
			return fmt.Errorf("poll relay: %w", err)
		}
		for _, msg := range msgs {
			fmt.Printf("[%s] %s: %s\n", time.Unix(int64(msg.Timestamp), 0).Format(time.RFC3339), msg.SenderID, msg.Text)
		}
	}

	if f.pollDNS {
		msg, ok, err := node.PollDNS(ctx)
		if err != nil {
			return fmt.Errorf("poll dns: %w", err)
		}
		if ok {
			fmt.Printf("[%s] %s: %s\n", time.Unix(int64(msg.Timestamp), 0).Format(time.RFC3339), msg.SenderID, msg.Text)
		}
	}

	return nil
}
