package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
)

var rootCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Checkpoint runs scripted admission and audit policies on a Kubernetes cluster.",
	Long: `Checkpoint lets operators express admission-control and periodic-audit
policies as small scripts in ValidatingRule, MutatingRule, and CronPolicy
resources, instead of standing up bespoke admission webhook services.`,
}

func Execute() {
	lifetimeCtx := ctrl.SetupSignalHandler()

	if err := rootCmd.ExecuteContext(lifetimeCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
