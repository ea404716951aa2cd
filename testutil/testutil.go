// Package testutil provides shared helpers for checkpoint tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
)

// Scheme returns a scheme with the client-go and checkpoint types
// registered.
func Scheme(t *testing.T) *runtime.Scheme {
	t.Helper()

	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, checkpointv1.AddToScheme(scheme))
	return scheme
}

// NewFakeClient builds a fake client pre-loaded with the given objects.
func NewFakeClient(t *testing.T, objs ...client.Object) client.WithWatch {
	t.Helper()

	return fake.NewClientBuilder().
		WithScheme(Scheme(t)).
		WithObjects(objs...).
		Build()
}
