package v1

import (
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// FailurePolicy defines how unrecognized errors from the admission endpoint
// are handled by the generated webhook configuration.
// +kubebuilder:validation:Enum=Fail;Ignore
type FailurePolicy string

const (
	FailurePolicyFail   FailurePolicy = "Fail"
	FailurePolicyIgnore FailurePolicy = "Ignore"
)

// ServiceAccountInfo references a ServiceAccount whose bound token is used
// for `kubeGet` and `kubeList` calls made by the rule's script.
type ServiceAccountInfo struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// RuleSpec is the common spec shared by ValidatingRule and MutatingRule.
type RuleSpec struct {
	// FailurePolicy defines how unrecognized errors from the admission
	// endpoint are handled - allowed values are Ignore or Fail.
	// Defaults to Fail.
	// +optional
	FailurePolicy *FailurePolicy `json:"failurePolicy,omitempty"`

	// NamespaceSelector decides whether to run the rule on an object based on
	// whether the namespace for that object matches the selector.
	// +optional
	NamespaceSelector *metav1.LabelSelector `json:"namespaceSelector,omitempty"`

	// ObjectSelector decides whether to run the rule based on if the object
	// has matching labels.
	// Defaults to the empty LabelSelector, which matches everything.
	// +optional
	ObjectSelector *metav1.LabelSelector `json:"objectSelector,omitempty"`

	// ObjectRules describes what operations on what resources/subresources
	// the rule cares about. The rule cares about an operation if it matches
	// _any_ entry.
	// +listType=atomic
	// +optional
	ObjectRules []admissionregistrationv1.RuleWithOperations `json:"objectRules,omitempty"`

	// TimeoutSeconds specifies the evaluation deadline for this rule.
	// Defaults to 5 seconds.
	// +optional
	TimeoutSeconds *int32 `json:"timeoutSeconds,omitempty"`

	// ServiceAccount names the ServiceAccount whose token is used for
	// `kubeGet` and `kubeList` calls from the script. Scripts of rules
	// without a ServiceAccount cannot read from the cluster.
	// +optional
	ServiceAccount *ServiceAccountInfo `json:"serviceAccount,omitempty"`

	// Code contains the JavaScript to evaluate when handling a request.
	Code string `json:"code"`
}

// RuleStatus is the observed state of a rule.
type RuleStatus struct{}

//+kubebuilder:object:root=true
//+kubebuilder:resource:scope=Cluster,shortName=vr
//+kubebuilder:subresource:status

// ValidatingRule scripts an admission decision for matching requests.
// The script reports its decision with `allow()` and `deny(reason)`.
type ValidatingRule struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   RuleSpec   `json:"spec"`
	Status RuleStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// ValidatingRuleList contains a list of ValidatingRule.
type ValidatingRuleList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ValidatingRule `json:"items"`
}

//+kubebuilder:object:root=true
//+kubebuilder:resource:scope=Cluster,shortName=mr
//+kubebuilder:subresource:status

// MutatingRule scripts an admission decision for matching requests.
// In addition to `allow()` and `deny(reason)` the script may emit a
// JSON-Patch with `mutate(patch)` or `allowAndMutate(patch)`.
type MutatingRule struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   RuleSpec   `json:"spec"`
	Status RuleStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// MutatingRuleList contains a list of MutatingRule.
type MutatingRuleList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []MutatingRule `json:"items"`
}

func init() {
	SchemeBuilder.Register(
		&ValidatingRule{}, &ValidatingRuleList{},
		&MutatingRule{}, &MutatingRuleList{},
	)
}
