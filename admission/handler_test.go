package admission_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	admissionv1 "k8s.io/api/admission/v1"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"

	checkpointadmission "github.com/devsisters/checkpoint/admission"
	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/match"
	"github.com/devsisters/checkpoint/internal/registry"
	"github.com/devsisters/checkpoint/testutil"
)

func namespacesEntry() admissionregistrationv1.RuleWithOperations {
	return admissionregistrationv1.RuleWithOperations{
		Operations: []admissionregistrationv1.OperationType{admissionregistrationv1.Create},
		Rule: admissionregistrationv1.Rule{
			APIGroups:   []string{""},
			APIVersions: []string{"v1"},
			Resources:   []string{"namespaces"},
		},
	}
}

func buildRegistry(t *testing.T, rules ...registry.Rule) *registry.Registry {
	t.Helper()

	reg := registry.New()
	for _, rule := range rules {
		reg.UpsertRule(rule)
	}
	return reg
}

func postReview(t *testing.T, h http.Handler, req admissionv1.AdmissionRequest) admissionv1.AdmissionReview {
	t.Helper()

	review := admissionv1.AdmissionReview{Request: &req}
	review.SetGroupVersionKind(admissionv1.SchemeGroupVersion.WithKind("AdmissionReview"))

	body := new(bytes.Buffer)
	require.NoError(t, json.NewEncoder(body).Encode(review))
	httpReq := httptest.NewRequest(http.MethodPost, checkpointadmission.PathValidate, body)
	httpReq = httpReq.WithContext(log.IntoContext(httpReq.Context(), testr.New(t)))
	httpReq.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httpReq)
	res := w.Result()
	require.Equal(t, http.StatusOK, res.StatusCode)

	defer res.Body.Close()
	var out admissionv1.AdmissionReview
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.NotNil(t, out.Response)
	return out
}

func Test_Handler_ValidateDeny(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t, registry.Rule{
		Kind: registry.KindValidating,
		Name: "cute-namespaces",
		Spec: checkpointv1.RuleSpec{
			ObjectRules: []admissionregistrationv1.RuleWithOperations{namespacesEntry()},
			Code: `
				var name = getRequest().object.metadata.name;
				if (!name.endsWith("-uwu")) { deny("That name is not cute enough."); }
			`,
		},
	})
	d := &checkpointadmission.Dispatcher{Matcher: &match.Matcher{Reader: testutil.NewFakeClient(t)}}
	h := checkpointadmission.NewValidatingHandler(reg, d)

	res := postReview(t, h, *namespaceCreateRequest(t, "foo"))
	assert.False(t, res.Response.Allowed)
	require.NotNil(t, res.Response.Result)
	assert.Contains(t, res.Response.Result.Message, "cute")
	assert.Equal(t, "test-uid", string(res.Response.UID))

	res = postReview(t, h, *namespaceCreateRequest(t, "foo-uwu"))
	assert.True(t, res.Response.Allowed)
	assert.Empty(t, res.Response.Patch)
}

func Test_Handler_MutatePatch(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t, registry.Rule{
		Kind: registry.KindMutating,
		Name: "append-suffix",
		Spec: checkpointv1.RuleSpec{
			ObjectRules: []admissionregistrationv1.RuleWithOperations{namespacesEntry()},
			Code: `
				var obj = getRequest().object;
				if (!obj.metadata.name.endsWith("-uwu")) {
					var next = jsonClone(obj);
					next.metadata.name = next.metadata.name + "-uwu";
					allowAndMutate(jsonPatchDiff(obj, next));
				}
			`,
		},
	})
	d := &checkpointadmission.Dispatcher{Matcher: &match.Matcher{Reader: testutil.NewFakeClient(t)}}
	h := checkpointadmission.NewMutatingHandler(reg, d)

	req := namespaceCreateRequest(t, "foobar")
	res := postReview(t, h, *req)
	require.True(t, res.Response.Allowed)
	require.NotEmpty(t, res.Response.Patch)
	require.NotNil(t, res.Response.PatchType)
	assert.Equal(t, admissionv1.PatchTypeJSONPatch, *res.Response.PatchType)
	assert.Equal(t, "foobar-uwu", patchedName(t, req, res.Response.Patch))
}

func Test_Handler_KindPartition(t *testing.T) {
	t.Parallel()

	// a mutating rule must not be dispatched on the validating path
	reg := buildRegistry(t, registry.Rule{
		Kind: registry.KindMutating,
		Name: "denier",
		Spec: checkpointv1.RuleSpec{
			ObjectRules: []admissionregistrationv1.RuleWithOperations{namespacesEntry()},
			Code:        `deny("should not run on validate path")`,
		},
	})
	d := &checkpointadmission.Dispatcher{Matcher: &match.Matcher{Reader: testutil.NewFakeClient(t)}}
	h := checkpointadmission.NewValidatingHandler(reg, d)

	res := postReview(t, h, *namespaceCreateRequest(t, "foo"))
	assert.True(t, res.Response.Allowed)
}

func Test_Handler_NonMatchingRequestAllowed(t *testing.T) {
	t.Parallel()

	reg := buildRegistry(t, registry.Rule{
		Kind: registry.KindValidating,
		Name: "denier",
		Spec: checkpointv1.RuleSpec{
			ObjectRules: []admissionregistrationv1.RuleWithOperations{namespacesEntry()},
			Code:        `deny("no")`,
		},
	})
	d := &checkpointadmission.Dispatcher{Matcher: &match.Matcher{Reader: testutil.NewFakeClient(t)}}
	h := checkpointadmission.NewValidatingHandler(reg, d)

	req := *namespaceCreateRequest(t, "foo")
	req.Resource.Resource = "configmaps"
	res := postReview(t, h, req)
	assert.True(t, res.Response.Allowed)
}

func Test_Ping(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	checkpointadmission.Ping().ServeHTTP(w, httptest.NewRequest(http.MethodGet, checkpointadmission.PathPing, nil))
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Equal(t, "ok", w.Body.String())
}
