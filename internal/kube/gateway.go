// Package kube provides the read-only cluster gateway backing script host
// ops and the cron runner's resource snapshotter. Reads made on behalf of a
// rule are authenticated with a bound ServiceAccount token minted through
// the TokenRequest API.
package kube

import (
	"context"
	"fmt"

	authenticationv1 "k8s.io/api/authentication/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	memory "k8s.io/client-go/discovery/cached"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/utils/ptr"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/script"
)

// TokenAudience is the audience requested for rule ServiceAccount tokens.
const TokenAudience = "https://kubernetes.default.svc.cluster.local"

// minTokenLifetimeSeconds is the minimum expiration requested for a bound
// token. The TokenRequest API rejects anything below 10 minutes.
const minTokenLifetimeSeconds int64 = 10 * 60

// Gateway builds read-only cluster readers, either with the controller's
// own identity or with a bound token of a rule's ServiceAccount.
type Gateway struct {
	config *rest.Config
	core   kubernetes.Interface
	mapper meta.RESTMapper
	tokens *tokenCache
}

// NewGateway builds a Gateway from the controller's rest config. The
// GVK to resource mapping is resolved through cached discovery with the
// controller's identity so restricted tokens do not need discovery rights.
func NewGateway(cfg *rest.Config) (*Gateway, error) {
	core, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build core client: %w", err)
	}
	dsc, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery client: %w", err)
	}
	return &Gateway{
		config: cfg,
		core:   core,
		mapper: restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(dsc)),
		tokens: newTokenCache(),
	}, nil
}

// ClusterReader returns a reader with the controller's own identity.
// It serves the cron runner's resource snapshotter.
func (g *Gateway) ClusterReader() (*Reader, error) {
	dyn, err := dynamic.NewForConfig(g.config)
	if err != nil {
		return nil, fmt.Errorf("failed to build dynamic client: %w", err)
	}
	return &Reader{dyn: dyn, mapper: g.mapper}, nil
}

// ForServiceAccount returns a reader authenticated with a bound token of the
// given ServiceAccount. Tokens are cached per ServiceAccount for half their
// lifetime.
func (g *Gateway) ForServiceAccount(ctx context.Context, sa checkpointv1.ServiceAccountInfo) (*Reader, error) {
	token, ok := g.tokens.get(sa)
	if !ok {
		minted, lifetime, err := g.mintToken(ctx, sa)
		if err != nil {
			return nil, err
		}
		g.tokens.put(sa, minted, lifetime/2)
		token = minted
	}

	cfg := rest.AnonymousClientConfig(g.config)
	cfg.BearerToken = token
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build restricted dynamic client: %w", err)
	}
	return &Reader{dyn: dyn, mapper: g.mapper}, nil
}

func (g *Gateway) mintToken(ctx context.Context, sa checkpointv1.ServiceAccountInfo) (string, int64, error) {
	tr, err := g.core.CoreV1().ServiceAccounts(sa.Namespace).CreateToken(ctx, sa.Name, &authenticationv1.TokenRequest{
		Spec: authenticationv1.TokenRequestSpec{
			Audiences:         []string{TokenAudience},
			ExpirationSeconds: ptr.To(minTokenLifetimeSeconds),
		},
	}, metav1.CreateOptions{})
	if apierrors.IsNotFound(err) {
		return "", 0, &script.Error{
			Kind: script.ErrorKindForbidden,
			Err:  fmt.Errorf("ServiceAccount %s/%s not found", sa.Namespace, sa.Name),
		}
	}
	if err != nil {
		return "", 0, classify(err)
	}
	lifetime := minTokenLifetimeSeconds
	if tr.Spec.ExpirationSeconds != nil {
		lifetime = *tr.Spec.ExpirationSeconds
	}
	return tr.Status.Token, lifetime, nil
}

// Reader performs read-only cluster access. It implements script.Kube.
type Reader struct {
	dyn    dynamic.Interface
	mapper meta.RESTMapper
}

var _ script.Kube = &Reader{}

// Get fetches a single object. A missing object returns nil without error.
func (r *Reader) Get(ctx context.Context, arg script.GetArgument) (map[string]any, error) {
	ri, err := r.resourceFor(arg.Group, arg.Version, arg.Kind, arg.Plural, arg.Namespace)
	if err != nil {
		return nil, err
	}
	obj, err := ri.Get(ctx, arg.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return obj.UnstructuredContent(), nil
}

// List fetches an object list.
func (r *Reader) List(ctx context.Context, arg script.ListArgument) (map[string]any, error) {
	ri, err := r.resourceFor(arg.Group, arg.Version, arg.Kind, arg.Plural, arg.Namespace)
	if err != nil {
		return nil, err
	}
	list, err := ri.List(ctx, metav1.ListOptions{
		LabelSelector: arg.LabelSelector,
		FieldSelector: arg.FieldSelector,
		Limit:         arg.Limit,
		Continue:      arg.Continue,
	})
	if err != nil {
		return nil, classify(err)
	}
	return list.UnstructuredContent(), nil
}

// Snapshot collects the resource slots of a CronPolicy in spec order. A slot
// with a name holds the object (or nil if absent), any other slot holds the
// list's items.
func (r *Reader) Snapshot(ctx context.Context, slots []checkpointv1.CronPolicyResource) ([]any, error) {
	out := make([]any, 0, len(slots))
	for i, slot := range slots {
		if slot.Name != "" {
			obj, err := r.Get(ctx, script.GetArgument{
				Group:     slot.Group,
				Version:   slot.Version,
				Kind:      slot.Kind,
				Plural:    slot.Plural,
				Namespace: slot.Namespace,
				Name:      slot.Name,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to snapshot resource slot %d: %w", i, err)
			}
			if obj == nil {
				out = append(out, nil)
			} else {
				out = append(out, obj)
			}
			continue
		}

		arg := script.ListArgument{
			Group:     slot.Group,
			Version:   slot.Version,
			Kind:      slot.Kind,
			Plural:    slot.Plural,
			Namespace: slot.Namespace,
		}
		if lp := slot.ListParams; lp != nil {
			arg.LabelSelector = lp.LabelSelector
			arg.FieldSelector = lp.FieldSelector
		}
		list, err := r.List(ctx, arg)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot resource slot %d: %w", i, err)
		}
		items, _ := list["items"].([]any)
		if items == nil {
			items = []any{}
		}
		out = append(out, items)
	}
	return out, nil
}

func (r *Reader) resourceFor(group, version, kind, plural, namespace string) (dynamic.ResourceInterface, error) {
	var gvr schema.GroupVersionResource
	if plural != "" {
		gvr = schema.GroupVersionResource{Group: group, Version: version, Resource: plural}
	} else {
		mapping, err := r.mapper.RESTMapping(schema.GroupKind{Group: group, Kind: kind}, version)
		if err != nil {
			return nil, &script.Error{
				Kind: script.ErrorKindKubeClient,
				Err:  fmt.Errorf("failed to resolve resource for %s/%s %s: %w", group, version, kind, err),
			}
		}
		gvr = mapping.Resource
	}

	if namespace != "" {
		return r.dyn.Resource(gvr).Namespace(namespace), nil
	}
	return r.dyn.Resource(gvr), nil
}

func classify(err error) error {
	if apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err) {
		return &script.Error{Kind: script.ErrorKindForbidden, Err: err}
	}
	return &script.Error{Kind: script.ErrorKindKubeClient, Err: err}
}
