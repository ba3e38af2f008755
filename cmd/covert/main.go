// Package main provides the CLI entry point for covert, a uniform-random
// file and message encryptor.
package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/postalsys/covert/internal/archive"
	"github.com/postalsys/covert/internal/config"
	"github.com/postalsys/covert/internal/covert"
	"github.com/postalsys/covert/internal/identity"
	"github.com/postalsys/covert/internal/licenses"
	"github.com/postalsys/covert/internal/logging"
	"github.com/postalsys/covert/internal/metrics"
	"github.com/postalsys/covert/internal/signature"
	"github.com/postalsys/covert/internal/sysinfo"
	"github.com/postalsys/covert/internal/wizard"
)

type loggerCtxKey struct{}

func contextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

func logFromCmd(cmd *cobra.Command) *slog.Logger {
	if logger, ok := cmd.Context().Value(loggerCtxKey{}).(*slog.Logger); ok {
		return logger
	}
	return logging.NopLogger()
}

func cryptoRandReader() io.Reader {
	return rand.Reader
}

// Version is set at build time via ldflags.
// When "dev", we use sysinfo.Version which has enhanced dev version info.
var Version = "dev"

func init() {
	if Version == "dev" {
		Version = sysinfo.Version
	} else {
		sysinfo.Version = Version
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)

	root := &cobra.Command{
		Use:   "covert",
		Short: "Covert - uniform-random file and message encryptor",
		Long: `Covert encrypts files and short messages into containers that are
indistinguishable from random noise: no header magic, no plaintext
version byte, no visible recipient count. Anyone without a matching
passphrase or identity cannot tell a covert file apart from random
data of the same length.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger := logging.NewLogger(logLevel, logFormat)
		cmd.SetContext(contextWithLogger(cmd.Context(), logger))
	}

	root.AddCommand(encryptCmd())
	root.AddCommand(decryptCmd())
	root.AddCommand(signCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(keygenCmd())
	root.AddCommand(licensesCmd())

	return root
}

func encryptCmd() *cobra.Command {
	var (
		recipientStrs []string
		passphrase    bool
		wideOpen      bool
		pad           float64
		signerPaths   []string
		output        string
		interactive   bool
		configPath    string
	)

	cmd := &cobra.Command{
		Use:   "encrypt [files...]",
		Short: "Encrypt files or a message into a covert container",
		Long: `Encrypt one or more files (or a message read from stdin when no
files are given) into a single covert container addressed to one or
more recipients, a shared passphrase, or wide-open for anyone.`,
		GroupID: "",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			m := metrics.Default()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("pad") {
				cfg.ApplyOverrides(&pad, nil, nil)
			} else {
				pad = cfg.Encryption.PaddingProportion
			}

			var opts wizard.Result
			if interactive {
				w := wizard.New(cfg.Encryption.PaddingProportion, cfg.Encryption.Decoys)
				result, err := w.Run()
				if err != nil {
					return err
				}
				opts = *result
			} else {
				recipients, err := resolveRecipients(recipientStrs, passphrase)
				if err != nil {
					return err
				}
				opts = wizard.Result{
					WideOpen:          wideOpen,
					Recipients:        recipients,
					PaddingProportion: pad,
					SignerPaths:       signerPaths,
				}
			}

			signers, err := loadSigners(opts.SignerPaths)
			if err != nil {
				return err
			}

			sources, err := buildSources(args)
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(output)
			if err != nil {
				return err
			}
			defer closeOut()

			encOpts := covert.EncryptOptions{
				Recipients:        opts.Recipients,
				WideOpen:          opts.WideOpen,
				PaddingProportion: opts.PaddingProportion,
				Decoys:            opts.Decoys,
				Signers:           signers,
			}

			counter := &countingWriter{w: out}
			if err := covert.Encrypt(counter, cryptoRandReader(), sources, encOpts); err != nil {
				m.RecordEncryptError(errorKind(err))
				return err
			}

			m.RecordEncrypt(modeLabel(encOpts), time.Since(start).Seconds(), counter.n)
			logFromCmd(cmd).Info("encrypt complete",
				logging.KeyMode, modeLabel(encOpts),
				logging.KeyRecipients, len(encOpts.Recipients),
				logging.KeyBytesOut, counter.n,
				logging.KeyDuration, time.Since(start).String(),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&recipientStrs, "recipient", nil, "recipient public key (covert1...), repeatable")
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "add a passphrase recipient (prompted, or read from COVERT_PASSPHRASE)")
	cmd.Flags().BoolVar(&wideOpen, "wide-open", false, "encrypt with no recipients at all")
	cmd.Flags().Float64Var(&pad, "pad", 0.05, "padding proportion of plaintext size")
	cmd.Flags().StringArrayVar(&signerPaths, "sign", nil, "identity file to sign the output with, repeatable")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "use the interactive setup wizard")
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "config file path")

	return cmd
}

func decryptCmd() *cobra.Command {
	var (
		identityPaths []string
		passphrase    bool
		output        string
	)

	cmd := &cobra.Command{
		Use:   "decrypt [file]",
		Short: "Decrypt a covert container",
		Long: `Decrypt a covert container via blind trial search over the given
identities and/or passphrase. Any failure — wrong key, truncation, or
tampering — is reported uniformly, by design, as an authentication
failure.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			m := metrics.Default()

			ids, err := loadIdentities(identityPaths)
			if err != nil {
				return err
			}

			var passphrases [][]byte
			if passphrase {
				pp, err := readPassphrase("Passphrase: ")
				if err != nil {
					return err
				}
				passphrases = append(passphrases, pp)
			}

			in, closeIn, err := openInput(args)
			if err != nil {
				return err
			}
			defer closeIn()

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("covert: read input: %w", err)
			}

			m.RecordDecrypt(0, len(data))
			file, err := covert.Decrypt(bytes.NewReader(data), ids, passphrases)
			if err != nil {
				m.RecordDecryptError(errorKind(err))
				return err
			}

			if err := writeFile(output, file); err != nil {
				return err
			}

			logFromCmd(cmd).Info("decrypt complete",
				logging.KeyBytesIn, len(data),
				logging.KeyDuration, time.Since(start).String(),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&identityPaths, "identity", nil, "identity file to try, repeatable")
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "also try a passphrase (prompted, or read from COVERT_PASSPHRASE)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory for decrypted entries (default: current directory)")

	return cmd
}

func signCmd() *cobra.Command {
	var (
		identityPath  string
		openPaths     []string
		openPassphrase bool
	)

	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Append a signature block to an already-encrypted container",
		Long: `Sign opens the container (via --open-identity/--open-passphrase, same
as decrypt) to recover its signing hash, then appends one XEdDSA
signature block computed with --identity's secret key. The container's
ciphertext bytes are unchanged; only a trailing block is added, so the
file remains a valid covert container for every other holder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.Load(identityPath)
			if err != nil {
				return fmt.Errorf("covert: load signer identity: %w", err)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("covert: read %s: %w", args[0], err)
			}

			file, err := openForSigning(data, openPaths, openPassphrase)
			if err != nil {
				return err
			}

			block, err := signature.Sign(cryptoRandReader(), id.SecretKey, file.Filehash)
			if err != nil {
				return fmt.Errorf("covert: sign: %w", err)
			}

			f, err := os.OpenFile(args[0], os.O_APPEND|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("covert: open %s: %w", args[0], err)
			}
			defer f.Close()

			if _, err := f.Write(block[:]); err != nil {
				return fmt.Errorf("covert: append signature: %w", err)
			}

			metrics.Default().RecordSign()
			return nil
		},
	}

	cmd.Flags().StringVar(&identityPath, "identity", defaultIdentityPath(), "signer identity file")
	cmd.Flags().StringArrayVar(&openPaths, "open-identity", nil, "identity file to open the container with, repeatable")
	cmd.Flags().BoolVar(&openPassphrase, "open-passphrase", false, "also try a passphrase to open the container")
	return cmd
}

// openForSigning recovers a File's signing hash for the sign/verify
// commands, which need the hash but not the decoded payload.
func openForSigning(data []byte, identityPaths []string, wantPassphrase bool) (*covert.File, error) {
	ids, err := loadIdentities(identityPaths)
	if err != nil {
		return nil, err
	}

	var passphrases [][]byte
	if wantPassphrase {
		pp, err := readPassphrase("Passphrase: ")
		if err != nil {
			return nil, err
		}
		passphrases = append(passphrases, pp)
	}

	// BlindSearch always tries the wide-open zero key in addition to ids
	// and passphrases, so no explicit fallback candidate is needed here.
	file, err := covert.Decrypt(bytes.NewReader(data), ids, passphrases)
	if err != nil {
		return nil, fmt.Errorf("covert: open container for signing: %w", err)
	}
	return file, nil
}

func verifyCmd() *cobra.Command {
	var (
		recipientStrs  []string
		openPaths      []string
		openPassphrase bool
	)

	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify a covert container's signature blocks against candidate public keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("covert: read %s: %w", args[0], err)
			}

			file, err := openForSigning(data, openPaths, openPassphrase)
			if err != nil {
				return err
			}

			candidates := make([]identity.Recipient, 0, len(recipientStrs))
			for _, s := range recipientStrs {
				rec, err := identity.ParseRecipientPublicKey(s)
				if err != nil {
					return fmt.Errorf("covert: parse recipient %q: %w", s, err)
				}
				candidates = append(candidates, rec)
			}

			keys := make([][32]byte, len(candidates))
			for i, c := range candidates {
				keys[i] = c.PublicKey
			}

			_, blockIdx, ok := signature.VerifyAny(file.SignatureBlocks, file.Filehash, keys)
			if !ok {
				metrics.Default().RecordVerify("failed")
				return fmt.Errorf("covert: no candidate key verifies any signature block")
			}

			metrics.Default().RecordVerify("ok")
			fmt.Printf("signature block %d verified\n", blockIdx)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&recipientStrs, "pubkey", nil, "candidate signer public key (covert1...), repeatable")
	cmd.Flags().StringArrayVar(&openPaths, "open-identity", nil, "identity file to open the container with, repeatable")
	cmd.Flags().BoolVar(&openPassphrase, "open-passphrase", false, "also try a passphrase to open the container")
	return cmd
}

func keygenCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new X25519/XEdDSA identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				path = defaultIdentityPath()
			}

			id, generated, err := identity.LoadOrGenerate(path)
			if err != nil {
				return err
			}
			if !generated {
				return fmt.Errorf("covert: identity already exists at %s", path)
			}

			fmt.Printf("identity written to %s\n", path)
			fmt.Printf("public key: %s\n", identity.EncodeRecipientPublicKey(id.PublicKey))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "identity file path (default: <user config dir>/covert/identity.key)")
	return cmd
}

func licensesCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "licenses",
		Short: "Print third-party license information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if full {
				text, err := licenses.GetAllLicenseTexts()
				if err != nil {
					return fmt.Errorf("covert: load license texts: %w", err)
				}
				fmt.Print(text)
				return nil
			}

			list, err := licenses.List()
			if err != nil {
				return fmt.Errorf("covert: load licenses: %w", err)
			}
			for _, lic := range list {
				fmt.Printf("%-40s %s\n", lic.Package, lic.Type)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "print full embedded license texts")
	return cmd
}

// --- helpers -----------------------------------------------------------

func resolveRecipients(recipientStrs []string, wantPassphrase bool) ([]identity.Recipient, error) {
	var recipients []identity.Recipient
	for _, s := range recipientStrs {
		rec, err := identity.ParseRecipientPublicKey(s)
		if err != nil {
			return nil, fmt.Errorf("covert: parse recipient %q: %w", s, err)
		}
		recipients = append(recipients, rec)
	}

	if wantPassphrase {
		pw, err := readPassphrase("Passphrase: ")
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, identity.NewPassphraseRecipient(string(pw)))
	}

	return recipients, nil
}

func readPassphrase(prompt string) ([]byte, error) {
	if pw, ok := os.LookupEnv("COVERT_PASSPHRASE"); ok {
		return []byte(pw), nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("covert: read passphrase: %w", err)
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("covert: read passphrase: %w", err)
	}
	return pw, nil
}

func loadSigners(paths []string) ([]identity.Identity, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	signers := make([]identity.Identity, 0, len(paths))
	for _, p := range paths {
		id, err := identity.Load(p)
		if err != nil {
			return nil, fmt.Errorf("covert: load signer %s: %w", p, err)
		}
		signers = append(signers, id)
	}
	return signers, nil
}

func loadIdentities(paths []string) ([]identity.Identity, error) {
	ids := make([]identity.Identity, 0, len(paths))
	for _, p := range paths {
		id, err := identity.Load(p)
		if err != nil {
			return nil, fmt.Errorf("covert: load identity %s: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// buildSources turns CLI file arguments into archive.FileSource values. With
// no arguments, it reads a single message entry from stdin (spec §6).
func buildSources(paths []string) ([]archive.FileSource, error) {
	if len(paths) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("covert: read stdin: %w", err)
		}
		return []archive.FileSource{{
			Entry:  archive.Entry{IsMessage: true, Size: int64(len(data))},
			Reader: bytes.NewReader(data),
		}}, nil
	}

	sources := make([]archive.FileSource, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("covert: open %s: %w", p, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("covert: stat %s: %w", p, err)
		}
		sources = append(sources, archive.FileSource{
			Entry: archive.Entry{
				Name: filepath.Base(p),
				Size: info.Size(),
			},
			Reader: f,
		})
	}
	return sources, nil
}

func writeFile(outDir string, file *covert.File) error {
	if outDir == "" {
		outDir = "."
	}
	for i, e := range file.Entries {
		if e.IsMessage {
			fmt.Println(string(file.Payloads[i]))
			continue
		}
		path := filepath.Join(outDir, filepath.Base(e.Name))
		mode := os.FileMode(0600)
		if e.Executable {
			mode = 0700
		}
		if err := os.WriteFile(path, file.Payloads[i], mode); err != nil {
			return fmt.Errorf("covert: write %s: %w", path, err)
		}
		fmt.Printf("wrote %s (%s)\n", path, humanize.Bytes(uint64(len(file.Payloads[i]))))
	}
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("covert: create %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func openInput(args []string) (io.Reader, func(), error) {
	if len(args) == 0 {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("covert: open %s: %w", args[0], err)
	}
	return f, func() { f.Close() }, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "covert.yaml"
	}
	return filepath.Join(dir, "covert", "config.yaml")
}

func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "identity.key"
	}
	return filepath.Join(dir, "covert", "identity.key")
}

func modeLabel(opts covert.EncryptOptions) string {
	switch {
	case opts.WideOpen:
		return "wide-open"
	case len(opts.Recipients) > 1:
		return "multi-recipient"
	default:
		return "single-recipient"
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, covert.ErrAuthFail):
		return "auth_fail"
	case errors.Is(err, covert.ErrFormat):
		return "format"
	case errors.Is(err, covert.ErrNoRecipients):
		return "no_recipients"
	case errors.Is(err, covert.ErrConflictingRecipients):
		return "conflicting_recipients"
	case errors.Is(err, covert.ErrTooManyRecipients):
		return "too_many_recipients"
	case errors.Is(err, covert.ErrPasswordTooShort):
		return "password_too_short"
	default:
		return "io_error"
	}
}

// countingWriter tracks total bytes written, for metrics/logging without
// requiring the caller to seek or re-stat the output.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
