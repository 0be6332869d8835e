// vaultctl is a command line client for the identityvault HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"identityvault/internal/identity/events"
	jwttoken "identityvault/internal/jwt_token"
	"identityvault/internal/platform/kafka"
	"identityvault/internal/platform/logger"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "vaultctl",
		Usage: "inspect and drive an identityvault server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "identityvault base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"VAULT_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "bearer token for chain write routes",
				EnvVars: []string{"VAULT_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout; chain writes wait for confirmation",
				Value: 3 * time.Minute,
			},
		},
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "show the off-chain identity record",
				ArgsUsage: "<address>",
				Action: withAddress(func(c *cli.Context, api *client, addr string) (json.RawMessage, error) {
					return api.getIdentity(c.Context, addr)
				}),
			},
			{
				Name:      "ledger",
				Usage:     "show the on-chain identity",
				ArgsUsage: "<address>",
				Action: withAddress(func(c *cli.Context, api *client, addr string) (json.RawMessage, error) {
					return api.getLedgerIdentity(c.Context, addr)
				}),
			},
			{
				Name:  "store",
				Usage: "store an identity hash on chain for the operator account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "hash", Required: true, Usage: "identity hash"},
					&cli.StringFlag{Name: "chain", Value: "moonbeam", Usage: "source chain"},
				},
				Action: func(c *cli.Context) error {
					return printResult(c, func(api *client) (json.RawMessage, error) {
						return api.store(c.Context, c.String("hash"), c.String("chain"))
					})
				},
			},
			{
				Name:  "share",
				Usage: "share the operator identity with a recipient",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "recipient", Required: true, Usage: "recipient address"},
				},
				Action: func(c *cli.Context) error {
					return printResult(c, func(api *client) (json.RawMessage, error) {
						return api.share(c.Context, c.String("recipient"))
					})
				},
			},
			{
				Name:  "import",
				Usage: "import a foreign identity and store it on chain",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "chain", Required: true, Usage: "source chain"},
					&cli.StringFlag{Name: "address", Required: true, Usage: "address on the source chain"},
					&cli.StringFlag{Name: "type", Required: true, Usage: "identity type (poap, nft, badge, message)"},
				},
				Action: func(c *cli.Context) error {
					return printResult(c, func(api *client) (json.RawMessage, error) {
						return api.importIdentity(c.Context, c.String("chain"), c.String("address"), c.String("type"))
					})
				},
			},
			{
				Name:  "status",
				Usage: "show network status",
				Action: func(c *cli.Context) error {
					return printResult(c, func(api *client) (json.RawMessage, error) {
						return api.networkStatus(c.Context)
					})
				},
			},
			{
				Name:      "history",
				Usage:     "list journaled operation transitions",
				ArgsUsage: "<address>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: withAddress(func(c *cli.Context, api *client, addr string) (json.RawMessage, error) {
					return api.history(c.Context, addr, c.Int("limit"))
				}),
			},
			{
				Name:  "token",
				Usage: "mint an operator token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "signing-key", Required: true, EnvVars: []string{"JWT_SIGNING_KEY"}},
					&cli.StringFlag{Name: "subject", Value: "operator"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: func(c *cli.Context) error {
					svc := jwttoken.NewJWTService(c.String("signing-key"), jwttoken.TokenIssuer, jwttoken.TokenAudience)
					token, err := svc.GenerateOperatorToken(c.String("subject"), c.Duration("ttl"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					_, err = fmt.Fprintln(c.App.Writer, token)
					return err
				},
			},
			{
				Name:  "watch",
				Usage: "print operation notifications from Kafka",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "brokers", Required: true, EnvVars: []string{"KAFKA_BROKERS"}},
					&cli.StringFlag{Name: "topic", Value: "identity.notifications", EnvVars: []string{"KAFKA_TOPIC"}},
					&cli.StringFlag{Name: "group", Value: "vaultctl"},
				},
				Action: watch,
			},
		},
	}
}

func apiFrom(c *cli.Context) *client {
	return newClient(c.String("server"), c.String("token"), c.Duration("timeout"))
}

func withAddress(fn func(c *cli.Context, api *client, addr string) (json.RawMessage, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return cli.Exit("expected exactly one address argument", 1)
		}
		return printResult(c, func(api *client) (json.RawMessage, error) {
			return fn(c, api, c.Args().First())
		})
	}
}

func printResult(c *cli.Context, fn func(api *client) (json.RawMessage, error)) error {
	raw, err := fn(apiFrom(c))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	_, err = fmt.Fprintln(c.App.Writer, pretty.String())
	return err
}

func watch(c *cli.Context) error {
	consumer, err := kafka.NewConsumer(c.StringSlice("brokers"), c.String("group"), c.String("topic"), logger.New("warn"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer consumer.Close()

	err = consumer.Run(c.Context, func(_ context.Context, msg *kafka.Message) error {
		n, err := events.Decode(msg.Value)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "skipping undecodable message at offset %d: %v\n", msg.Offset, err)
			return nil
		}
		line := fmt.Sprintf("%s %-5s %s %s", n.At.Format(time.RFC3339), n.Kind, n.Address, n.Outcome)
		if n.ErrorCode != "" {
			line += " [" + string(n.ErrorCode) + "]"
		}
		_, err = fmt.Fprintf(c.App.Writer, "%s %s\n", line, n.Message)
		return err
	})
	if err != nil && c.Context.Err() == nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
