// Gensecret prints a random secret key.
// With --operator-id it prints an operator token signed with --secret-key instead.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/service/operator"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Args[1:], os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "gensecret: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, getenv func(string) string) error {
	var (
		op        models.Operator
		secretKey string
		ttl       time.Duration
	)

	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	fs.StringVar(&op.ID, "operator-id", "", "Issue token for the operator with this id")
	fs.StringVar(&op.Name, "operator-name", "", "Operator display name")
	fs.StringVarP(&secretKey, "secret-key", "s", getenv("SECRET_KEY"), "Secret key to sign operator token")
	fs.DurationVar(&ttl, "ttl", 0, "Operator token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if op.ID == "" {
		b := make([]byte, SecretKeyBytesLen)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("error while generating secret key: %w", err)
		}
		fmt.Println(hex.EncodeToString(b))
		return nil
	}

	tokens, err := operator.New(operator.Config{SecretKey: secretKey, TTL: ttl})
	if err != nil {
		return err
	}

	token, err := tokens.Issue(op)
	if err != nil {
		return err
	}

	fmt.Println(token.Value)
	return nil
}
