package cmd

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/certwatcher"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	"github.com/devsisters/checkpoint/admission"
	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/controllers"
	"github.com/devsisters/checkpoint/internal/cron"
	"github.com/devsisters/checkpoint/internal/kube"
	"github.com/devsisters/checkpoint/internal/match"
	"github.com/devsisters/checkpoint/internal/notify"
	"github.com/devsisters/checkpoint/internal/registry"
	"github.com/devsisters/checkpoint/internal/script"
)

var metricsAddr string
var enableLeaderElection bool
var probeAddr string
var zapOpts = zap.Options{
	Development: true,
}

func init() {
	rootCmd.AddCommand(controllerCmd)

	zapFlagSet := flag.NewFlagSet("zap", flag.ExitOnError)
	zapOpts.BindFlags(zapFlagSet)
	controllerCmd.Flags().AddGoFlagSet(zapFlagSet)

	controllerCmd.Flags().StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	controllerCmd.Flags().StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	controllerCmd.Flags().BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")

	defaultNamespace := "default"
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		defaultNamespace = ns
	}
	controllerCmd.Flags().String("controller-namespace", defaultNamespace, "The namespace the controller runs in.")

	controllerCmd.Flags().String("webhook-service-name", "checkpoint-webhook-service", "The name of the service that serves the admission webhook.")
	controllerCmd.Flags().String("webhook-name", "checkpoint-rules", "The name of the managed webhook configurations.")
	controllerCmd.Flags().Int32("webhook-port", 9443, "The port the admission webhook listens on.")

	controllerCmd.Flags().String("webhook-cert-path", "", "The directory that contains the webhook certificate.")
	controllerCmd.Flags().String("webhook-cert-name", "tls.crt", "The name of the webhook certificate file.")
	controllerCmd.Flags().String("webhook-cert-key", "tls.key", "The name of the webhook key file.")

	controllerCmd.Flags().Bool("metrics-secure", true, "If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	controllerCmd.Flags().String("metrics-cert-path", "", "The directory that contains the metrics server certificate.")
	controllerCmd.Flags().String("metrics-cert-name", "tls.crt", "The name of the metrics server certificate file.")
	controllerCmd.Flags().String("metrics-cert-key", "tls.key", "The name of the metrics server key file.")
}

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Starts the controller manager",
	Long:  "Starts the controller manager serving the admission webhook and the cron policy runner",
	RunE:  runController,
}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(checkpointv1.AddToScheme(scheme))
	return scheme
}

func runController(cmd *cobra.Command, _ []string) error {
	controllerNamespace, cnerr := cmd.Flags().GetString("controller-namespace")
	webhookServiceName, wsnerr := cmd.Flags().GetString("webhook-service-name")
	webhookName, wnerr := cmd.Flags().GetString("webhook-name")
	webhookPort, wperr := cmd.Flags().GetInt32("webhook-port")
	webhookCertPath, wcperr := cmd.Flags().GetString("webhook-cert-path")
	webhookCertName, wcnerr := cmd.Flags().GetString("webhook-cert-name")
	webhookCertKey, wckerr := cmd.Flags().GetString("webhook-cert-key")
	secureMetrics, smerr := cmd.Flags().GetBool("metrics-secure")
	metricsCertPath, mcperr := cmd.Flags().GetString("metrics-cert-path")
	metricsCertName, mcnerr := cmd.Flags().GetString("metrics-cert-name")
	metricsCertKey, mckerr := cmd.Flags().GetString("metrics-cert-key")

	if err := multierr.Combine(cnerr, wsnerr, wnerr, wperr, wcperr, wcnerr, wckerr, smerr, mcperr, mcnerr, mckerr); err != nil {
		return fmt.Errorf("failed to get flags: %w", err)
	}

	cmd.Println("Starting the controller manager",
		"controller-namespace", controllerNamespace,
		"webhook-service-name", webhookServiceName,
		"webhook-name", webhookName,
	)

	scheme := newScheme()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))

	var webhookCertWatcher *certwatcher.CertWatcher

	var webhookTLSOpts []func(*tls.Config)
	if len(webhookCertPath) > 0 {
		cmd.Println("Initializing webhook certificate watcher using provided certificates",
			"webhook-cert-path", webhookCertPath, "webhook-cert-name", webhookCertName, "webhook-cert-key", webhookCertKey)

		var err error
		webhookCertWatcher, err = certwatcher.New(
			filepath.Join(webhookCertPath, webhookCertName),
			filepath.Join(webhookCertPath, webhookCertKey),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize webhook certificate watcher: %w", err)
		}

		webhookTLSOpts = append(webhookTLSOpts, func(config *tls.Config) {
			config.GetCertificate = webhookCertWatcher.GetCertificate
		})
	}

	webhookServer := webhook.NewServer(webhook.Options{
		Port:    int(webhookPort),
		TLSOpts: webhookTLSOpts,
	})

	var metricsCertWatcher *certwatcher.CertWatcher

	metricsServerOptions := metricsserver.Options{
		BindAddress:   metricsAddr,
		SecureServing: secureMetrics,
		TLSOpts:       []func(*tls.Config){},
	}

	if secureMetrics {
		// FilterProvider is used to protect the metrics endpoint with authn/authz.
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	if len(metricsCertPath) > 0 {
		cmd.Println("Initializing metrics certificate watcher using provided certificates",
			"metrics-cert-path", metricsCertPath, "metrics-cert-name", metricsCertName, "metrics-cert-key", metricsCertKey)

		var err error
		metricsCertWatcher, err = certwatcher.New(
			filepath.Join(metricsCertPath, metricsCertName),
			filepath.Join(metricsCertPath, metricsCertKey),
		)
		if err != nil {
			cmd.Println("failed to initialize metrics certificate watcher", "error", err)
			os.Exit(1)
		}

		metricsServerOptions.TLSOpts = append(metricsServerOptions.TLSOpts, func(config *tls.Config) {
			config.GetCertificate = metricsCertWatcher.GetCertificate
		})
	}

	restConf := ctrl.GetConfigOrDie()
	mgr, err := ctrl.NewManager(restConf, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		WebhookServer:          webhookServer,
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "checkpoint.devsisters.com",
	})
	if err != nil {
		return fmt.Errorf("unable to start manager: %w", err)
	}

	gateway, err := kube.NewGateway(restConf)
	if err != nil {
		return fmt.Errorf("unable to build kube gateway: %w", err)
	}

	reg := registry.New()
	dispatcher := &admission.Dispatcher{
		Matcher: &match.Matcher{Reader: mgr.GetClient()},
		Grants: func(ctx context.Context, sa checkpointv1.ServiceAccountInfo) (script.Kube, error) {
			return gateway.ForServiceAccount(ctx, sa)
		},
	}

	mgr.GetWebhookServer().Register(admission.PathValidate, admission.NewValidatingHandler(reg, dispatcher))
	mgr.GetWebhookServer().Register(admission.PathMutate, admission.NewMutatingHandler(reg, dispatcher))
	mgr.GetWebhookServer().Register(admission.PathPing, admission.Ping())

	if err := (&controllers.ValidatingRuleReconciler{
		Client:              mgr.GetClient(),
		Registry:            reg,
		WebhookName:         webhookName,
		WebhookServiceName:  webhookServiceName,
		WebhookPort:         webhookPort,
		ControllerNamespace: controllerNamespace,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create ValidatingRule controller: %w", err)
	}
	if err := (&controllers.MutatingRuleReconciler{
		Client:              mgr.GetClient(),
		Registry:            reg,
		WebhookName:         webhookName,
		WebhookServiceName:  webhookServiceName,
		WebhookPort:         webhookPort,
		ControllerNamespace: controllerNamespace,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create MutatingRule controller: %w", err)
	}
	if err := (&controllers.CronPolicyReconciler{
		Client:   mgr.GetClient(),
		Registry: reg,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create CronPolicy controller: %w", err)
	}

	clusterReader, err := gateway.ClusterReader()
	if err != nil {
		return fmt.Errorf("unable to build cluster reader: %w", err)
	}
	runner := cron.NewRunner(clusterReader, notify.NewNotifier())
	reg.OnCronPoliciesChanged(runner.Sync)
	if err := mgr.Add(runner); err != nil {
		return fmt.Errorf("unable to add cron runner to manager: %w", err)
	}

	metrics.Registry.MustRegister(&controllers.RegistryCollector{Registry: reg})

	if metricsCertWatcher != nil {
		cmd.Println("Adding metrics certificate watcher to manager")
		if err := mgr.Add(metricsCertWatcher); err != nil {
			cmd.Println("unable to add metrics certificate watcher to manager", err)
			os.Exit(1)
		}
	}

	if webhookCertWatcher != nil {
		cmd.Println("Adding webhook certificate watcher to manager")
		if err := mgr.Add(webhookCertWatcher); err != nil {
			return fmt.Errorf("unable to add webhook certificate watcher to manager: %w", err)
		}
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	cmd.Println("Starting the controller manager")
	if err := mgr.Start(cmd.Context()); err != nil {
		return fmt.Errorf("problem running manager: %w", err)
	}
	return nil
}
