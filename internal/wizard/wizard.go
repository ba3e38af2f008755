// Package wizard provides an interactive recipient/passphrase entry flow for
// `covert encrypt --interactive`, built on huh forms and a lipgloss banner.
package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/postalsys/covert/internal/header"
	"github.com/postalsys/covert/internal/identity"
)

// bannerStyle renders the wizard's opening banner.
var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205")).
	Padding(0, 1)

// Result is the wizard's output: everything covert.EncryptOptions needs,
// gathered interactively instead of from flags.
type Result struct {
	WideOpen          bool
	Recipients        []identity.Recipient
	PaddingProportion float64
	Decoys            int
	SignerPaths        []string // identity files to sign with, empty if unsigned
}

// Wizard drives the interactive setup.
type Wizard struct {
	defaultPadding float64
	defaultDecoys  int
}

// New creates a setup wizard, seeded with the config-file defaults so the
// first form screen already shows sensible values (spec §4.7 precedence:
// file defaults, flags or wizard answers override).
func New(defaultPadding float64, defaultDecoys int) *Wizard {
	return &Wizard{defaultPadding: defaultPadding, defaultDecoys: defaultDecoys}
}

// Run executes the interactive flow and returns the recipient set and
// encryption options the caller should pass to covert.Encrypt.
func (w *Wizard) Run() (*Result, error) {
	printBanner()

	wideOpen, err := askWideOpen()
	if err != nil {
		return nil, err
	}

	result := &Result{WideOpen: wideOpen}

	if !wideOpen {
		recipients, err := askRecipients()
		if err != nil {
			return nil, err
		}
		result.Recipients = recipients
	}

	padding, decoys, err := askEncryptionOptions(w.defaultPadding, w.defaultDecoys)
	if err != nil {
		return nil, err
	}
	result.PaddingProportion = padding
	result.Decoys = decoys

	signerPaths, err := askSigners()
	if err != nil {
		return nil, err
	}
	result.SignerPaths = signerPaths

	return result, nil
}

func printBanner() {
	fmt.Println(bannerStyle.Render("covert — interactive encryption setup"))
	fmt.Println()
}

func askWideOpen() (bool, error) {
	var wideOpen bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Encrypt wide-open?").
				Description("No recipients — anyone holding the file can open it.").
				Value(&wideOpen),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("wizard: wide-open prompt: %w", err)
	}
	return wideOpen, nil
}

// askRecipients loops adding recipients one at a time until the user
// declines to add another, matching the teacher's step-driven prompt flow.
func askRecipients() ([]identity.Recipient, error) {
	var recipients []identity.Recipient

	for {
		kind, err := askRecipientKind()
		if err != nil {
			return nil, err
		}

		switch kind {
		case recipientKindPublicKey:
			rec, err := askPublicKeyRecipient()
			if err != nil {
				return nil, err
			}
			recipients = append(recipients, rec)
		case recipientKindPassphrase:
			rec, err := askPassphraseRecipient()
			if err != nil {
				return nil, err
			}
			recipients = append(recipients, rec)
		}

		if len(recipients) >= header.MaxRecipients {
			break
		}

		another, err := askAddAnother()
		if err != nil {
			return nil, err
		}
		if !another {
			break
		}
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("wizard: no recipients added")
	}
	return recipients, nil
}

type recipientKind int

const (
	recipientKindPublicKey recipientKind = iota
	recipientKindPassphrase
)

func askRecipientKind() (recipientKind, error) {
	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recipient type").
				Options(
					huh.NewOption("Public key (covert1...)", "pubkey"),
					huh.NewOption("Shared passphrase", "passphrase"),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return 0, fmt.Errorf("wizard: recipient type prompt: %w", err)
	}
	if choice == "passphrase" {
		return recipientKindPassphrase, nil
	}
	return recipientKindPublicKey, nil
}

func askPublicKeyRecipient() (identity.Recipient, error) {
	var key string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Recipient public key").
				Placeholder("covert1...").
				Value(&key).
				Validate(func(s string) error {
					_, err := identity.ParseRecipientPublicKey(strings.TrimSpace(s))
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		return identity.Recipient{}, fmt.Errorf("wizard: public key prompt: %w", err)
	}
	return identity.ParseRecipientPublicKey(strings.TrimSpace(key))
}

func askPassphraseRecipient() (identity.Recipient, error) {
	var pw, confirmPw string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Passphrase").
				EchoMode(huh.EchoModePassword).
				Value(&pw).
				Validate(func(s string) error {
					if len(strings.TrimSpace(s)) < 8 {
						return fmt.Errorf("passphrase must be at least 8 characters")
					}
					return nil
				}),
			huh.NewInput().
				Title("Confirm passphrase").
				EchoMode(huh.EchoModePassword).
				Value(&confirmPw),
		),
	)
	if err := form.Run(); err != nil {
		return identity.Recipient{}, fmt.Errorf("wizard: passphrase prompt: %w", err)
	}
	if pw != confirmPw {
		return identity.Recipient{}, fmt.Errorf("wizard: passphrases did not match")
	}
	return identity.NewPassphraseRecipient(pw), nil
}

func askAddAnother() (bool, error) {
	var again bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Add another recipient?").
				Value(&again),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("wizard: add-another prompt: %w", err)
	}
	return again, nil
}

func askEncryptionOptions(defaultPadding float64, defaultDecoys int) (float64, int, error) {
	padStr := strconv.FormatFloat(defaultPadding, 'g', -1, 64)
	decoysStr := strconv.Itoa(defaultDecoys)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Padding proportion").
				Description("Fraction of file size spent on size-obscuring padding (0.0-1.0)").
				Value(&padStr).
				Validate(func(s string) error {
					v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
					if err != nil || v < 0 {
						return fmt.Errorf("must be a non-negative number")
					}
					return nil
				}),
			huh.NewInput().
				Title("Decoy recipient slots").
				Description("Extra random auth slots to obscure the true recipient count (0-19)").
				Value(&decoysStr).
				Validate(func(s string) error {
					v, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || v < 0 || v > 19 {
						return fmt.Errorf("must be an integer between 0 and 19")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return 0, 0, fmt.Errorf("wizard: encryption options prompt: %w", err)
	}

	padding, err := strconv.ParseFloat(strings.TrimSpace(padStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("wizard: parse padding proportion: %w", err)
	}
	decoys, err := strconv.Atoi(strings.TrimSpace(decoysStr))
	if err != nil {
		return 0, 0, fmt.Errorf("wizard: parse decoy count: %w", err)
	}
	return padding, decoys, nil
}

func askSigners() ([]string, error) {
	var wantSign bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Sign this file?").
				Value(&wantSign),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard: sign prompt: %w", err)
	}
	if !wantSign {
		return nil, nil
	}

	var paths []string
	for {
		var path string
		pathForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Signer identity file").
					Placeholder("~/.config/covert/identity.key").
					Value(&path).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("identity path is required")
						}
						return nil
					}),
			),
		)
		if err := pathForm.Run(); err != nil {
			return nil, fmt.Errorf("wizard: signer identity prompt: %w", err)
		}
		paths = append(paths, strings.TrimSpace(path))

		var again bool
		moreForm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Add another signer?").
					Value(&again),
			),
		)
		if err := moreForm.Run(); err != nil {
			return nil, fmt.Errorf("wizard: add-signer prompt: %w", err)
		}
		if !again {
			break
		}
	}
	return paths, nil
}
