package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dmitrymomot/otpvault/pkg/otp"
)

// descriptorFlags builds an otp.Descriptor from either --uri or the
// individual parameter flags.
type descriptorFlags struct {
	uri       string
	secret    string
	issuer    string
	account   string
	algorithm string
	digits    int
	period    uint
	counter   uint64
	hotp      bool
}

func (f *descriptorFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.uri, "uri", "", "otpauth:// provisioning URI")
	fs.StringVar(&f.secret, "secret", "", "base32 shared secret")
	fs.StringVar(&f.issuer, "issuer", "", "issuer name")
	fs.StringVar(&f.account, "account", "", "account name")
	fs.StringVar(&f.algorithm, "algorithm", string(otp.DefaultAlgorithm), "SHA1, SHA256 or SHA512")
	fs.IntVar(&f.digits, "digits", otp.DefaultDigits, "code length")
	fs.UintVar(&f.period, "period", otp.DefaultPeriod, "TOTP step in seconds")
	fs.Uint64Var(&f.counter, "counter", 0, "HOTP counter")
	fs.BoolVar(&f.hotp, "hotp", false, "counter-based instead of time-based")
}

func (f *descriptorFlags) descriptor() (otp.Descriptor, error) {
	if f.uri != "" {
		return otp.ParseURI(f.uri)
	}
	if f.secret == "" {
		return otp.Descriptor{}, errors.New("either --uri or --secret is required")
	}

	secret, err := otp.ParseSecret(f.secret)
	if err != nil {
		return otp.Descriptor{}, err
	}
	alg, err := otp.ParseAlgorithm(f.algorithm)
	if err != nil {
		return otp.Descriptor{}, err
	}

	d := otp.Descriptor{
		Issuer:      f.issuer,
		AccountName: f.account,
		Secret:      secret,
		Algorithm:   alg,
		Digits:      f.digits,
		Kind:        otp.KindTOTP,
		Period:      f.period,
	}
	if f.hotp {
		d.Kind, d.Period, d.Counter = otp.KindHOTP, 0, f.counter
	}
	d = d.WithDefaults()
	return d, d.Validate()
}

type codeView struct {
	Label     string  `yaml:"label,omitempty"`
	Code      string  `yaml:"code"`
	Counter   *uint64 `yaml:"counter,omitempty"`
	Time      string  `yaml:"time,omitempty"`
	Offset    string  `yaml:"offset,omitempty"`
	Remaining string  `yaml:"remaining,omitempty"`
	Progress  float64 `yaml:"progress,omitempty"`
}

func totpView(d otp.Descriptor, code string, at time.Time, offset time.Duration) codeView {
	return codeView{
		Label:     d.Label(),
		Code:      code,
		Time:      at.UTC().Format(time.RFC3339),
		Offset:    offset.String(),
		Remaining: otp.Remaining(at, d.Period).String(),
		Progress:  otp.Progress(at, d.Period),
	}
}

func newCodeCmd(a *app) *cobra.Command {
	var (
		flags  descriptorFlags
		at     int64
		noSync bool
	)

	cmd := &cobra.Command{
		Use:   "code",
		Short: "Compute a one-time code without storing the account",
		Example: `  otpvault code --secret JBSWY3DPEHPK3PXP
  otpvault code --uri 'otpauth://totp/ACME:alice?secret=JBSWY3DPEHPK3PXP'
  otpvault code --secret JBSWY3DPEHPK3PXP --hotp --counter 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}

			if d.Kind == otp.KindHOTP {
				code, err := otp.HOTP(d.Secret, d.Counter, d.Algorithm, d.Digits)
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), codeView{Label: d.Label(), Code: code, Counter: &d.Counter})
			}

			now, offset, err := a.now(cmd.Context(), at, noSync)
			if err != nil {
				return err
			}
			code, err := d.Code(now)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), totpView(d, code, now, offset))
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().Int64Var(&at, "at", 0, "unix time to compute the code for")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "use the system clock without NTP correction")
	return cmd
}

func newKeygenCmd(*app) *cobra.Command {
	var (
		flags descriptorFlags
		size  int
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random shared secret",
		Long: `Generates a random secret and prints it in base32. With --issuer and
--account the matching otpauth:// URI is printed as well.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := otp.GenerateSecret(size)
			if err != nil {
				return err
			}

			out := struct {
				Secret string `yaml:"secret"`
				URI    string `yaml:"uri,omitempty"`
			}{Secret: otp.EncodeSecret(secret)}

			if flags.issuer != "" && flags.account != "" {
				flags.secret = out.Secret
				d, err := flags.descriptor()
				if err != nil {
					return err
				}
				if out.URI, err = d.URI(); err != nil {
					return err
				}
			}
			return printYAML(cmd.OutOrStdout(), out)
		},
	}

	flags.register(cmd.Flags())
	_ = cmd.Flags().MarkHidden("uri")
	_ = cmd.Flags().MarkHidden("secret")
	cmd.Flags().IntVar(&size, "size", 20, "secret length in bytes")
	return cmd
}
