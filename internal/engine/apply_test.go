package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
)

// fakeProvider records every call and keeps applied objects in memory.
type fakeProvider struct {
	mu      sync.Mutex
	applied []string
	deleted []string
	objects map[string]bool

	// failOn maps type.name to the error its Apply returns.
	failOn map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		objects: make(map[string]bool),
		failOn:  make(map[string]error),
	}
}

func (f *fakeProvider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (f *fakeProvider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	addr := req.Type + "." + req.Name
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[addr]; err != nil {
		return nil, err
	}
	f.applied = append(f.applied, addr)
	f.objects[addr] = true
	state, _ := json.Marshal(map[string]any{"id": addr + "-id"})
	return &provider.ApplyResponse{State: state}, nil
}

func (f *fakeProvider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	var current map[string]any
	json.Unmarshal(req.Current, &current)
	addr, _ := current["addr"].(string)
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr == "" {
		// Apply-created objects record their address in the id.
		for a := range f.objects {
			if a+"-id" == req.ID {
				addr = a
			}
		}
	}
	return &provider.ReadResponse{Exists: f.objects[addr]}, nil
}

func (f *fakeProvider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for a := range f.objects {
		if a+"-id" == req.ID {
			f.deleted = append(f.deleted, a)
			delete(f.objects, a)
			return nil
		}
	}
	return nil
}

func newTestEngine(fake *fakeProvider) *Engine {
	reg := provider.NewRegistry()
	reg.Register("test", fake)
	eng := New(reg)
	// Keep failure tests fast.
	eng.Retry = RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return eng
}

func TestApply_CreatesInDependencyOrder(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "test_object" "vpc" {
  provider = "test"
  name     = "vpc"
}

resource "test_object" "subnet" {
  provider = "test"
  vpc_id   = test_object.vpc.id
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)

	fake := newFakeProvider()
	eng := newTestEngine(fake)
	st := ir.NewState()
	plan := CreatePlan(g, st)

	require.NoError(t, eng.Apply(context.Background(), g, plan, st, nil))

	require.Equal(t, []string{"test_object.vpc", "test_object.subnet"}, fake.applied)

	vpc := st.Resource("test_object.vpc")
	require.NotNil(t, vpc)
	assert.Equal(t, ir.StatusCreated, vpc.Status)
	assert.Equal(t, "test_object.vpc-id", vpc.Outputs["id"])
	assert.NotEmpty(t, vpc.InputsHash)

	// The subnet's reference resolved to the vpc's provider-assigned id.
	subnet := st.Resource("test_object.subnet")
	require.NotNil(t, subnet)
	assert.Equal(t, "test_object.vpc-id", subnet.Inputs["vpc_id"])
	assert.Equal(t, 1, st.Serial)
}

func TestApply_SecondRunIsNoOp(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "test_object" "a" {
  provider = "test"
  name     = "a"
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)

	fake := newFakeProvider()
	eng := newTestEngine(fake)
	st := ir.NewState()

	require.NoError(t, eng.Apply(context.Background(), g, CreatePlan(g, st), st, nil))
	require.Len(t, fake.applied, 1)

	plan := CreatePlan(g, st)
	assert.False(t, plan.HasChanges())
	require.NoError(t, eng.Apply(context.Background(), g, plan, st, nil))
	assert.Len(t, fake.applied, 1, "unchanged resource must not reach the provider again")
}

func TestApply_MidChainFailure(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "test_object" "n1" {
  provider = "test"
  name     = "n1"
}

resource "test_object" "n2" {
  provider = "test"
  ref      = test_object.n1.id
}

resource "test_object" "n3" {
  provider = "test"
  ref      = test_object.n2.id
}

resource "test_object" "n4" {
  provider = "test"
  ref      = test_object.n3.id
}

resource "test_object" "n5" {
  provider = "test"
  ref      = test_object.n4.id
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)

	fake := newFakeProvider()
	fake.failOn["test_object.n3"] = fmt.Errorf("quota exceeded for this account")
	eng := newTestEngine(fake)
	st := ir.NewState()

	err = eng.Apply(context.Background(), g, CreatePlan(g, st), st, nil)
	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"test_object.n3"}, partial.Failed)

	assert.Equal(t, ir.StatusCreated, st.Resource("test_object.n1").Status)
	assert.Equal(t, ir.StatusCreated, st.Resource("test_object.n2").Status)
	assert.Equal(t, ir.StatusFailed, st.Resource("test_object.n3").Status)
	assert.Nil(t, st.Resource("test_object.n4"), "downstream node must never start")
	assert.Nil(t, st.Resource("test_object.n5"), "downstream node must never start")

	// A re-run resumes from the failure point.
	fake.failOn = map[string]error{}
	require.NoError(t, eng.Apply(context.Background(), g, CreatePlan(g, st), st, nil))
	assert.Equal(t, ir.StatusCreated, st.Resource("test_object.n5").Status)
	assert.Equal(t, []string{"test_object.n1", "test_object.n2", "test_object.n3", "test_object.n4", "test_object.n5"}, fake.applied)
}

func TestApply_BatchSiblingsFinishOnFailure(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "test_object" "bad" {
  provider = "test"
  name     = "bad"
}

resource "test_object" "good" {
  provider = "test"
  name     = "good"
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)

	fake := newFakeProvider()
	fake.failOn["test_object.bad"] = fmt.Errorf("boom")
	eng := newTestEngine(fake)
	st := ir.NewState()

	err = eng.Apply(context.Background(), g, CreatePlan(g, st), st, nil)
	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"test_object.bad"}, partial.Failed)
	assert.Equal(t, ir.StatusCreated, st.Resource("test_object.good").Status)
}

func TestApply_DeletesRemovedResourcesFirst(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "test_object" "keep" {
  provider = "test"
  name     = "keep"
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)

	fake := newFakeProvider()
	eng := newTestEngine(fake)

	st := ir.NewState()
	st.Upsert(&ir.ResourceState{
		Type:     "test_object",
		Name:     "old",
		Provider: "test",
		Status:   ir.StatusCreated,
		Outputs:  map[string]any{"id": "test_object.old-id"},
	})
	fake.objects["test_object.old"] = true

	require.NoError(t, eng.Apply(context.Background(), g, CreatePlan(g, st), st, nil))
	assert.Equal(t, []string{"test_object.old"}, fake.deleted)
	assert.Nil(t, st.Resource("test_object.old"))
	assert.NotNil(t, st.Resource("test_object.keep"))
}

func TestDestroy_ReverseOrderSequential(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "test_object" "a" {
  provider = "test"
  name     = "a"
}

resource "test_object" "b" {
  provider = "test"
  ref      = test_object.a.id
}

resource "test_object" "c" {
  provider = "test"
  ref      = test_object.b.id
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)

	fake := newFakeProvider()
	eng := newTestEngine(fake)
	st := ir.NewState()
	require.NoError(t, eng.Apply(context.Background(), g, CreatePlan(g, st), st, nil))

	require.NoError(t, eng.Destroy(context.Background(), st))
	assert.Equal(t, []string{"test_object.c", "test_object.b", "test_object.a"}, fake.deleted)
	assert.Empty(t, st.Resources)
}

func TestDestroy_AlreadyGoneIsNoOp(t *testing.T) {
	fake := newFakeProvider()
	eng := newTestEngine(fake)

	st := ir.NewState()
	st.Upsert(&ir.ResourceState{
		Type:     "test_object",
		Name:     "ghost",
		Provider: "test",
		Status:   ir.StatusCreated,
		Outputs:  map[string]any{"id": "test_object.ghost-id"},
	})

	// The remote object is gone; destroy only drops the state entry.
	require.NoError(t, eng.Destroy(context.Background(), st))
	assert.Empty(t, fake.deleted)
	assert.Empty(t, st.Resources)
}

func TestApplySingle_MergesOverrides(t *testing.T) {
	fake := newFakeProvider()
	eng := newTestEngine(fake)

	st := ir.NewState()
	st.Upsert(&ir.ResourceState{
		Type:     "test_object",
		Name:     "app",
		Provider: "test",
		Status:   ir.StatusCreated,
		Inputs:   map[string]any{"image": "app:v1", "replicas": float64(2)},
		Outputs:  map[string]any{"id": "test_object.app-id"},
	})
	fake.objects["test_object.app"] = true

	require.NoError(t, eng.ApplySingle(context.Background(), st, "test_object.app", map[string]any{"image": "app:v2"}))

	rs := st.Resource("test_object.app")
	assert.Equal(t, "app:v2", rs.Inputs["image"])
	assert.Equal(t, float64(2), rs.Inputs["replicas"])
	assert.Equal(t, ir.StatusCreated, rs.Status)
	assert.Equal(t, 1, st.Serial)
}

func TestApplySingle_UnknownResource(t *testing.T) {
	eng := newTestEngine(newFakeProvider())
	err := eng.ApplySingle(context.Background(), ir.NewState(), "test_object.missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in state")
}

func TestApply_BranchReferenceResolvesToActiveMember(t *testing.T) {
	cfg := parseTestConfig(t, `
variable "enable_ssl" {
  type    = bool
  default = false
}

resource "test_object" "lb" {
  provider = "test"
  name     = "web"
}

resource "test_object" "https" {
  provider  = "test"
  condition = var.enable_ssl
  branch    = "listener"
  lb_id     = test_object.lb.id
  port      = 443
}

resource "test_object" "http" {
  provider  = "test"
  condition = !var.enable_ssl
  branch    = "listener"
  lb_id     = test_object.lb.id
  port      = 80
}

resource "test_object" "dns" {
  provider = "test"
  target   = test_object.https.id
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)
	vars := boolVars("enable_ssl", false)
	require.NoError(t, ResolveConditions(g, vars))

	fake := newFakeProvider()
	eng := newTestEngine(fake)
	st := ir.NewState()

	// The dns record names the excluded https listener; the run must
	// converge with the reference resolved to the active http listener.
	require.NoError(t, eng.Apply(context.Background(), g, CreatePlan(g, st), st, vars))

	dns := st.Resource("test_object.dns")
	require.NotNil(t, dns)
	assert.Equal(t, ir.StatusCreated, dns.Status)
	assert.Equal(t, "test_object.http-id", dns.Inputs["target"])
	assert.Nil(t, st.Resource("test_object.https"))
}

func TestApply_ExcludedNodeNeverReachesProvider(t *testing.T) {
	cfg := parseTestConfig(t, `
variable "enabled" {
  type    = bool
  default = false
}

resource "test_object" "on" {
  provider = "test"
  name     = "on"
}

resource "test_object" "off" {
  provider  = "test"
  condition = var.enabled
  name      = "off"
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)
	require.NoError(t, ResolveConditions(g, boolVars("enabled", false)))

	fake := newFakeProvider()
	eng := newTestEngine(fake)
	st := ir.NewState()
	vars := boolVars("enabled", false)

	require.NoError(t, eng.Apply(context.Background(), g, CreatePlan(g, st), st, vars))
	assert.Equal(t, []string{"test_object.on"}, fake.applied)
	assert.Nil(t, st.Resource("test_object.off"))
}
