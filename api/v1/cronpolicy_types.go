package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CronPolicyResourceListParams restrict the resources collected for a slot.
type CronPolicyResourceListParams struct {
	// LabelSelector restricts the resources by their labels. Lists all if
	// not specified.
	// +optional
	LabelSelector string `json:"labelSelector,omitempty"`
	// FieldSelector restricts the resources by their fields. Lists all if
	// not specified.
	// +optional
	FieldSelector string `json:"fieldSelector,omitempty"`
}

// CronPolicyResource specifies one resource slot passed to the script.
// Slot order defines the order of the lists returned by `getResources()`.
type CronPolicyResource struct {
	// Group is the API group the resources belong to.
	Group string `json:"group"`
	// Version is the API version the resources belong to.
	Version string `json:"version"`
	// Kind of the resources.
	Kind string `json:"kind"`
	// Plural overrides the plural name inferred from Kind.
	// +optional
	Plural string `json:"plural,omitempty"`
	// Namespace of the resources. Lists from all namespaces if not specified.
	// +optional
	Namespace string `json:"namespace,omitempty"`
	// Name of the resource. If set the slot holds a single object instead of
	// a list.
	// +optional
	Name string `json:"name,omitempty"`
	// ListParams restrict the listed resources.
	// +optional
	ListParams *CronPolicyResourceListParams `json:"listParams,omitempty"`
}

// WebhookNotification posts the rendered template to an HTTP endpoint.
type WebhookNotification struct {
	// URL of the webhook.
	URL string `json:"url"`
	// Template is the body template of the webhook. `{policy.name}` and
	// `{output.<field>}` are substituted from the policy and the script
	// output.
	Template string `json:"template"`
}

// SlackNotification posts the rendered template to a Slack incoming webhook.
type SlackNotification struct {
	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string `json:"webhookUrl"`
	// Template is the message template. Same substitution rules as the
	// webhook notification.
	Template string `json:"template"`
}

// CronPolicyNotifications configures where to send the rendered output.
type CronPolicyNotifications struct {
	// +optional
	Webhook *WebhookNotification `json:"webhook,omitempty"`
	// +optional
	Slack *SlackNotification `json:"slack,omitempty"`
}

// RestartPolicy for the containers of a one-shot check job.
// +kubebuilder:validation:Enum=OnFailure;Never
type RestartPolicy string

const (
	RestartPolicyOnFailure RestartPolicy = "OnFailure"
	RestartPolicyNever     RestartPolicy = "Never"
)

// CronPolicySpec defines the desired state of a CronPolicy.
type CronPolicySpec struct {
	// Suspend tells the runner to skip subsequent executions. It does not
	// apply to already started executions. Defaults to false.
	// +optional
	Suspend bool `json:"suspend,omitempty"`
	// Schedule in Cron format, see https://en.wikipedia.org/wiki/Cron.
	Schedule string `json:"schedule"`

	// Resources to snapshot and pass to the script, in order.
	Resources []CronPolicyResource `json:"resources"`
	// Code contains the JavaScript to evaluate on the resources.
	Code string `json:"code"`
	// Notifications to send when the script produces output.
	// +optional
	Notifications CronPolicyNotifications `json:"notifications,omitempty"`

	// TimeoutSeconds specifies the evaluation deadline for the script.
	// Defaults to 30 seconds.
	// +optional
	TimeoutSeconds *int32 `json:"timeoutSeconds,omitempty"`
	// RestartPolicy for the containers of a one-shot check job.
	// +optional
	RestartPolicy RestartPolicy `json:"restartPolicy,omitempty"`
}

// CronPolicyStatus defines the observed state of a CronPolicy.
type CronPolicyStatus struct{}

//+kubebuilder:object:root=true
//+kubebuilder:resource:scope=Cluster,shortName=cp
//+kubebuilder:subresource:status

// CronPolicy checks the specified resources with the provided script
// periodically and notifies when the script produces output.
type CronPolicy struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   CronPolicySpec   `json:"spec"`
	Status CronPolicyStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// CronPolicyList contains a list of CronPolicy.
type CronPolicyList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []CronPolicy `json:"items"`
}

func init() {
	SchemeBuilder.Register(&CronPolicy{}, &CronPolicyList{})
}
