package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"rewardvault/cmd/internal/passphrase"
	"rewardvault/crypto"
	"rewardvault/native/rewards"
	sdk "rewardvault/sdk/rewards"
)

const passphraseEnv = "REWARDCTL_PASSPHRASE"

var (
	serverURL        = defaultServerURL()
	authToken        = strings.TrimSpace(os.Getenv("REWARDSD_TOKEN"))
	passphraseSource = passphrase.NewSource(passphraseEnv)
	keygenPassphrase = passphrase.NewSource(passphraseEnv, passphrase.WithPrompt("New key passphrase: "), passphrase.WithConfirm())
	requestTimeout   = 30 * time.Second
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygenCommand(args[1:], stdout, stderr)
	case "user-ref":
		return runUserRefCommand(args[1:], stdout, stderr)
	case "derive":
		return runDeriveCommand(args[1:], stdout, stderr)
	case "init":
		return runInitCommand(args[1:], stdout, stderr)
	case "deposit":
		return runDepositCommand(args[1:], stdout, stderr)
	case "claim":
		return runClaimCommand(args[1:], stdout, stderr)
	case "entry":
		return runEntryCommand(args[1:], stdout, stderr)
	case "pool":
		return runPoolCommand(args[1:], stdout, stderr)
	case "audit":
		return runAuditCommand(args[1:], stdout, stderr)
	case "holder":
		return runHolderCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func defaultServerURL() string {
	if v := strings.TrimSpace(os.Getenv("REWARDSD_URL")); v != "" {
		return v
	}
	return "http://localhost:7090"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--server" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--server" {
				serverURL = args[i+1]
			} else {
				authToken = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--server="):
			serverURL = strings.TrimPrefix(arg, "--server=")
		case strings.HasPrefix(arg, "--token="):
			authToken = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: rewardctl [--server URL] [--token JWT] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen     - Generates a signing key (-encrypt stores it in a keystore)")
	fmt.Fprintln(w, "  user-ref   - Hashes an external identity into a user reference")
	fmt.Fprintln(w, "  derive     - Derives the vault authority of a pool")
	fmt.Fprintln(w, "  init       - Initializes a reward pool")
	fmt.Fprintln(w, "  deposit    - Credits rewards to a user")
	fmt.Fprintln(w, "  claim      - Releases rewards to a destination holder")
	fmt.Fprintln(w, "  entry      - Shows the balance of a user")
	fmt.Fprintln(w, "  pool       - Shows a pool and its vault")
	fmt.Fprintln(w, "  audit      - Compares vault custody with the ledger entries")
	fmt.Fprintln(w, "  holder     - Shows a bank holder")
}

func newClient() *sdk.Client {
	return sdk.NewClient(serverURL, sdk.WithToken(authToken))
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// loadKey reads a plain or encrypted key file, asking for the passphrase only
// when the file is a keystore.
func loadKey(path string) (*crypto.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("key file is required")
	}
	var pass string
	if crypto.IsKeystore(path) {
		var err error
		if pass, err = passphraseSource.Get(); err != nil {
			return nil, err
		}
	}
	return crypto.LoadKeyFile(path, pass)
}

// resolveUser accepts either a base58 user reference or an external identity
// that is hashed into one.
func resolveUser(user, ref string) (solana.PublicKey, error) {
	user, ref = strings.TrimSpace(user), strings.TrimSpace(ref)
	switch {
	case user != "" && ref != "":
		return solana.PublicKey{}, errors.New("--user and --user-ref are mutually exclusive")
	case ref != "":
		return rewards.HashUserRef(ref), nil
	case user != "":
		return crypto.ParsePublicKey(user)
	default:
		return solana.PublicKey{}, errors.New("--user or --user-ref is required")
	}
}

func requireFlag(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return trimmed, nil
}

func writeResult(stdout io.Writer, v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(stdout, "%v\n", v)
		return
	}
	fmt.Fprintln(stdout, string(encoded))
}

func fail(stderr io.Writer, err error) int {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(stderr, "Error: %s: %s\n", apiErr.Code, apiErr.Message)
		return 2
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
