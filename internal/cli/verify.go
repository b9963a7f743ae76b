package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guardspine/docsync/internal/chain"
	"github.com/guardspine/docsync/internal/pack"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <pack>",
	Short: "Check an evidence pack's hash chain offline",
	Long: `Verify recomputes an evidence pack's hash chain from its contents and
compares it against the sealed hashes. No network access and no
repository are needed; the pack alone decides.

Example:
  docsync verify evidence-pack-0.json`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "ERROR: pack not found: %s\n", path)
			return ErrSilent
		}
		return fmt.Errorf("read pack: %w", err)
	}

	p, err := pack.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	ok, message := chain.Verify(p)
	if !ok {
		fmt.Fprintf(os.Stderr, "FAILED: %s\n", message)
		return ErrSilent
	}

	fmt.Printf("VERIFIED: %s\n", message)
	fmt.Printf("  %d claims, chain intact\n", len(p.Results))
	return nil
}
