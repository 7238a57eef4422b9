package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"rewardvault/crypto"
	"rewardvault/native/rewards"
)

func runKeygenCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	var encrypt bool
	fs.StringVar(&out, "out", "rewardvault.key", "path of the key file to write")
	fs.BoolVar(&encrypt, "encrypt", false, "encrypt the key with a passphrase ("+passphraseEnv+" or prompt)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, err)
	}
	if encrypt {
		pass, err := keygenPassphrase.Get()
		if err != nil {
			return fail(stderr, err)
		}
		err = crypto.SaveToKeystore(out, key, pass)
		if err != nil {
			return fail(stderr, err)
		}
	} else if err := crypto.SaveKeyFile(out, key); err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, map[string]string{"publicKey": key.PublicKey().String(), "file": out})
	return 0
}

func runUserRefCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("user-ref", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var id string
	fs.StringVar(&id, "id", "", "external identity to hash (account id, e-mail)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	fmt.Fprintln(stdout, rewards.HashUserRef(id).String())
	return 0
}
