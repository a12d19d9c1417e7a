package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"escrownet/crypto"
	"escrownet/gateway"
	"escrownet/native/escrow"
)

const usage = `escrownet-cli <command>

Commands:
  keygen                         generate a key pair and print the address
  addr -key <hex>                derive the address for a private key
  id -maker <addr> -token <sym> -nonce <n>
                                 compute the instance id for a registration
  token -secret <s> -subject <name> [-scopes a,b] [-ttl 24h]
                                 mint a gateway access token
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen()
	case "addr":
		err = runAddr(os.Args[2:])
	case "id":
		err = runID(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "escrownet-cli: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen() error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	fmt.Printf("private: %x\n", key.Bytes())
	fmt.Printf("address: %s\n", key.PubKey().Address())
	return nil
}

func runAddr(args []string) error {
	fs := flag.NewFlagSet("addr", flag.ExitOnError)
	keyHex := fs.String("key", "", "private key in hex")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return err
	}
	fmt.Println(key.PubKey().Address())
	return nil
}

func runID(args []string) error {
	fs := flag.NewFlagSet("id", flag.ExitOnError)
	makerStr := fs.String("maker", "", "maker address (bech32)")
	token := fs.String("token", "", "token symbol")
	nonce := fs.Uint64("nonce", 0, "registration nonce")
	if err := fs.Parse(args); err != nil {
		return err
	}
	maker, err := crypto.DecodeAddress(*makerStr)
	if err != nil {
		return fmt.Errorf("maker: %w", err)
	}
	normalized, err := escrow.NormalizeToken(*token)
	if err != nil {
		return err
	}
	id := escrow.InstanceID(maker.Array(), normalized, *nonce)
	fmt.Printf("0x%x\n", id[:])
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", "", "gateway JWT secret")
	subject := fs.String("subject", "", "token subject")
	scopes := fs.String("scopes", gateway.ScopeSubmit, "comma separated scopes")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("subject required")
	}
	auth, err := gateway.NewAuthenticator([]byte(*secret), "")
	if err != nil {
		return err
	}
	token, err := auth.IssueToken(*subject, strings.Split(*scopes, ","), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
