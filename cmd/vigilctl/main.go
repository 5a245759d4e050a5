package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-vigil/api/clients"
	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/ruteri/tee-vigil/kms"
	"github.com/urfave/cli/v2"
)

var flagServerAddr = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	EnvVars: []string{"VIGIL_SERVER"},
	Usage:   "vigil server address",
}

var flagKey = &cli.StringFlag{
	Name:    "key",
	EnvVars: []string{"VIGIL_KEY"},
	Usage:   "hex-encoded secp256k1 private key to sign requests with",
}

var flagFormat = &cli.StringFlag{
	Name:  "format",
	Value: interfaces.JSONFormat.Name,
	Usage: "wire format: 'json' or 'cbor'",
}

var flagName = &cli.StringFlag{
	Name:     "name",
	Required: true,
	Usage:    "secret name",
}

var flagOwner = &cli.StringFlag{
	Name:  "owner",
	Usage: "address of the secret owner (defaults to the caller)",
}

var flagAt = &cli.Uint64Flag{
	Name:  "at",
	Usage: "revelation time as Unix seconds",
}

var flagIn = &cli.DurationFlag{
	Name:  "in",
	Usage: "revelation time relative to now",
}

var flagValue = &cli.StringFlag{
	Name:  "value",
	Usage: "secret value",
}

var flagValueFile = &cli.StringFlag{
	Name:  "value-file",
	Usage: "read the secret value from a file",
}

var flagRevealTo = &cli.StringSliceFlag{
	Name:  "reveal-to",
	Usage: "address allowed to read the secret once revealed (repeatable)",
}

var flagAnyone = &cli.BoolFlag{
	Name:  "anyone",
	Usage: "allow anyone to read the secret once revealed",
}

func main() {
	app := &cli.App{
		Name:  "vigilctl",
		Usage: "Manage secrets on a vigil server",
		Flags: []cli.Flag{
			flagServerAddr,
			flagKey,
			flagFormat,
		},
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "generate a new signing key",
				Action: func(cCtx *cli.Context) error {
					key, err := crypto.GenerateKey()
					if err != nil {
						return err
					}
					fmt.Printf("key:     %x\n", crypto.FromECDSA(key))
					fmt.Printf("address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
					return nil
				},
			},
			{
				Name:  "seal-split",
				Usage: "generate a new seal seed and write its Shamir shares to files",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "parts", Value: 5, Usage: "number of shares"},
					&cli.IntFlag{Name: "threshold", Value: 3, Usage: "shares needed to reconstruct the seed"},
					&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "directory to write share-N.hex files to"},
				},
				Action: func(cCtx *cli.Context) error {
					paths, err := splitSealSeed(cCtx.String("out-dir"), kms.ShamirConfig{
						Parts:     cCtx.Int("parts"),
						Threshold: cCtx.Int("threshold"),
					})
					if err != nil {
						return err
					}
					for _, path := range paths {
						fmt.Println(path)
					}
					return nil
				},
			},
			{
				Name:  "instantiate",
				Usage: "instantiate the registry",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.Instantiate(cCtx.Context)
				},
			},
			{
				Name:  "create",
				Usage: "create a secret owned by the caller",
				Flags: []cli.Flag{flagName, flagValue, flagValueFile, flagRevealTo, flagAnyone, flagAt, flagIn},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					value, err := secretValue(cCtx)
					if err != nil {
						return err
					}
					set, err := revelationSet(cCtx)
					if err != nil {
						return err
					}
					ts, err := revelationTimestamp(cCtx, time.Now())
					if err != nil {
						return err
					}
					return c.CreateSecret(cCtx.Context, cCtx.String(flagName.Name), value, set, ts)
				},
			},
			{
				Name:  "reset",
				Usage: "move the revelation time of a caller-owned secret",
				Flags: []cli.Flag{flagName, flagAt, flagIn},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					ts, err := revelationTimestamp(cCtx, time.Now())
					if err != nil {
						return err
					}
					return c.ResetRevelationTimestamp(cCtx.Context, cCtx.String(flagName.Name), ts)
				},
			},
			{
				Name:  "delete",
				Usage: "delete a caller-owned secret",
				Flags: []cli.Flag{flagName},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					return c.DeleteSecret(cCtx.Context, cCtx.String(flagName.Name))
				},
			},
			{
				Name:  "timestamp",
				Usage: "print the revelation time of a secret",
				Flags: []cli.Flag{flagName, flagOwner},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					owner, err := ownerOf(cCtx, c)
					if err != nil {
						return err
					}
					ts, err := c.GetRevelationTimestamp(cCtx.Context, owner, cCtx.String(flagName.Name))
					if err != nil {
						return err
					}
					fmt.Printf("%d (%s)\n", ts, time.Unix(int64(ts), 0).UTC().Format(time.RFC3339))
					return nil
				},
			},
			{
				Name:  "set",
				Usage: "print the revelation set of a caller-owned secret",
				Flags: []cli.Flag{flagName},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					set, err := c.GetRevelationSet(cCtx.Context, cCtx.String(flagName.Name))
					if err != nil {
						return err
					}
					fmt.Println(set.String())
					return nil
				},
			},
			{
				Name:  "value",
				Usage: "write the value of a secret to stdout",
				Flags: []cli.Flag{flagName, flagOwner},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx)
					if err != nil {
						return err
					}
					owner, err := ownerOf(cCtx, c)
					if err != nil {
						return err
					}
					value, err := c.GetSecretValue(cCtx.Context, owner, cCtx.String(flagName.Name))
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(value)
					return err
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// splitSealSeed generates a random seed and writes one share per file. The
// seed itself is never written.
func splitSealSeed(dir string, cfg kms.ShamirConfig) ([]string, error) {
	seed := make([]byte, kms.MinSeedLength)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	shares, err := kms.SplitSealSeed(seed, cfg)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(shares))
	for i, share := range shares {
		paths[i] = filepath.Join(dir, fmt.Sprintf("share-%d.hex", i+1))
		if err := os.WriteFile(paths[i], []byte(share.String()+"\n"), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write share: %w", err)
		}
	}
	return paths, nil
}

func newClient(cCtx *cli.Context) (*clients.VigilClient, error) {
	keyHex := cCtx.String(flagKey.Name)
	if keyHex == "" {
		return nil, errors.New("--key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("could not parse key: %w", err)
	}

	c := clients.NewVigilClient(cCtx.String(flagServerAddr.Name), key)
	switch cCtx.String(flagFormat.Name) {
	case interfaces.JSONFormat.Name:
	case interfaces.CBORFormat.Name:
		c.Format = interfaces.CBORFormat
	default:
		return nil, fmt.Errorf("unknown format %q", cCtx.String(flagFormat.Name))
	}
	return c, nil
}

func ownerOf(cCtx *cli.Context, c *clients.VigilClient) (interfaces.Identity, error) {
	if !cCtx.IsSet(flagOwner.Name) {
		return c.Identity(), nil
	}
	owner, err := interfaces.NewIdentityFromHex(cCtx.String(flagOwner.Name))
	if err != nil {
		return interfaces.Identity{}, fmt.Errorf("could not parse owner: %w", err)
	}
	return owner, nil
}

func secretValue(cCtx *cli.Context) ([]byte, error) {
	switch {
	case cCtx.IsSet(flagValue.Name) && cCtx.IsSet(flagValueFile.Name):
		return nil, errors.New("--value and --value-file are mutually exclusive")
	case cCtx.IsSet(flagValueFile.Name):
		return os.ReadFile(cCtx.String(flagValueFile.Name))
	default:
		return []byte(cCtx.String(flagValue.Name)), nil
	}
}

func revelationSet(cCtx *cli.Context) (interfaces.RevelationSet, error) {
	members := cCtx.StringSlice(flagRevealTo.Name)
	if cCtx.Bool(flagAnyone.Name) {
		if len(members) > 0 {
			return interfaces.RevelationSet{}, errors.New("--anyone and --reveal-to are mutually exclusive")
		}
		return interfaces.Anyone(), nil
	}

	entities := make([]interfaces.Identity, 0, len(members))
	for _, m := range members {
		id, err := interfaces.NewIdentityFromHex(m)
		if err != nil {
			return interfaces.RevelationSet{}, fmt.Errorf("could not parse --reveal-to %q: %w", m, err)
		}
		entities = append(entities, id)
	}
	return interfaces.Entities(entities...), nil
}

func revelationTimestamp(cCtx *cli.Context, now time.Time) (uint64, error) {
	switch {
	case cCtx.IsSet(flagAt.Name) && cCtx.IsSet(flagIn.Name):
		return 0, errors.New("--at and --in are mutually exclusive")
	case cCtx.IsSet(flagAt.Name):
		return cCtx.Uint64(flagAt.Name), nil
	case cCtx.IsSet(flagIn.Name):
		return uint64(now.Add(cCtx.Duration(flagIn.Name)).Unix()), nil
	default:
		return 0, errors.New("one of --at or --in is required")
	}
}
