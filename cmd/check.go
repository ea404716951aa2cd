package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/cron"
	"github.com/devsisters/checkpoint/internal/kube"
	"github.com/devsisters/checkpoint/internal/notify"
)

func init() {
	rootCmd.AddCommand(checkCmd)

	zapFlagSet := flag.NewFlagSet("zap", flag.ExitOnError)
	checkZapOpts.BindFlags(zapFlagSet)
	checkCmd.Flags().AddGoFlagSet(zapFlagSet)

	checkCmd.Flags().Bool("dry-run", false, "Evaluate the policy but do not send notifications.")

	viper.SetEnvPrefix("checkpoint")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlag("dry-run", checkCmd.Flags().Lookup("dry-run")); err != nil {
		panic(err)
	}
}

var checkZapOpts = zap.Options{
	Development: true,
}

var checkCmd = &cobra.Command{
	Use:   "check NAME",
	Short: "Runs a single CronPolicy once",
	Long: `Runs a single CronPolicy once, outside the schedule: snapshots the
configured resources, evaluates the policy code, and sends the configured
notifications if the code produced output. Intended for one-shot check jobs
and for trying out policies.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&checkZapOpts)))

	restConf := ctrl.GetConfigOrDie()
	c, err := client.New(restConf, client.Options{Scheme: newScheme()})
	if err != nil {
		return fmt.Errorf("unable to build client: %w", err)
	}

	var policy checkpointv1.CronPolicy
	if err := c.Get(cmd.Context(), types.NamespacedName{Name: args[0]}, &policy); err != nil {
		return fmt.Errorf("failed to get CronPolicy %q: %w", args[0], err)
	}

	gateway, err := kube.NewGateway(restConf)
	if err != nil {
		return fmt.Errorf("unable to build kube gateway: %w", err)
	}
	reader, err := gateway.ClusterReader()
	if err != nil {
		return fmt.Errorf("unable to build cluster reader: %w", err)
	}

	var notifier cron.Notifier = notify.NewNotifier()
	if viper.GetBool("dry-run") {
		notifier = dryRunNotifier{cmd: cmd}
	}

	runner := cron.NewRunner(reader, notifier)
	if err := runner.RunOnce(cmd.Context(), &policy); err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	return nil
}

type dryRunNotifier struct {
	cmd *cobra.Command
}

func (n dryRunNotifier) Notify(_ context.Context, policy *checkpointv1.CronPolicy, output map[string]any) error {
	n.cmd.Println("dry-run: would notify", "cronpolicy", policy.Name, "output", fmt.Sprintf("%v", output))
	return nil
}
