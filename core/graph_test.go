package core

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/lidar-simulator/model"
)

func TestGraphAppendRejectsDuplicateNames(t *testing.T) {
	g := NewGraph("test", nil)
	if err := g.Append("a", KindCompaction, CompactionParams{}); err != nil {
		t.Fatalf("first Append: %v", err)
	}

	err := g.Append("a", KindCompaction, CompactionParams{})
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("duplicate Append error = %v, want ErrDuplicateNode", err)
	}
	var se *GraphStructureError
	if !errors.As(err, &se) || se.Node != "a" {
		t.Fatalf("error = %#v, want GraphStructureError for node a", err)
	}
}

func TestGraphUpdateUnknownNode(t *testing.T) {
	g := NewGraph("test", nil)
	if err := g.Update("missing", CompactionParams{}); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("Update unknown error = %v, want ErrUnknownNode", err)
	}
	if err := g.SetActive("missing", false); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("SetActive unknown error = %v, want ErrUnknownNode", err)
	}
}

func TestGraphDeactivationRetainsParams(t *testing.T) {
	g := NewGraph("test", nil)
	params := RingIDParams{IDs: []int{7, 8}}
	if err := g.Append("rings", KindRingIDs, params); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := g.SetActive("rings", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	n := g.Node("rings")
	if n.Active() {
		t.Fatal("node still active after deactivation")
	}
	got, ok := n.Params().(RingIDParams)
	if !ok || len(got.IDs) != 2 || got.IDs[0] != 7 {
		t.Fatalf("params after deactivation = %#v, want retained %#v", n.Params(), params)
	}

	if err := g.SetActive("rings", true); err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if !g.Node("rings").Active() {
		t.Fatal("node not active after re-activation")
	}
}

func TestGraphConnectRefusesCycles(t *testing.T) {
	root := NewGraph("root", nil)
	child := NewGraph("child", nil)

	if err := root.Connect(child); err != nil {
		t.Fatalf("Connect child: %v", err)
	}
	if err := child.Connect(root); !errors.Is(err, ErrCyclicConnect) {
		t.Fatalf("cyclic Connect error = %v, want ErrCyclicConnect", err)
	}
	if err := root.Connect(root); !errors.Is(err, ErrCyclicConnect) {
		t.Fatalf("self Connect error = %v, want ErrCyclicConnect", err)
	}
}

func TestGraphConnectFansOut(t *testing.T) {
	root := NewGraph("root", nil)
	a := NewGraph("a", nil)
	b := NewGraph("b", nil)

	if err := root.Connect(a); err != nil {
		t.Fatalf("Connect a: %v", err)
	}
	if err := root.Connect(b); err != nil {
		t.Fatalf("Connect b: %v", err)
	}
	if a.Root() != root || b.Root() != root {
		t.Fatal("children do not resolve the shared root")
	}
}

func TestGraphExecuteWithoutSceneFails(t *testing.T) {
	g := NewGraph("test", nil)
	err := g.Execute(CaptureContext{Sensor: "s"})
	if !errors.Is(err, ErrMissingScene) {
		t.Fatalf("Execute without scene = %v, want ErrMissingScene", err)
	}
}

func TestGraphExecuteSkipsInactiveNodes(t *testing.T) {
	scene := NewSimpleScene([]Sphere{{Center: sphereAhead, Radius: 1, Reflectivity: 0.9}}, false)
	g := NewGraph("test", NewExecutor(scene, 1))

	rays := []model.Ray{{AzimuthDeg: 0, ElevationDeg: 0, MinRange: 0.1, MaxRange: 50}}
	mustAppend(t, g, NodeRaySource, KindRaySource, RaySourceParams{Rays: rays})
	mustAppend(t, g, NodeRingIDs, KindRingIDs, RingIDParams{IDs: []int{42}})
	mustAppend(t, g, NodeRaytrace, KindRaytrace, RaytraceParams{})

	if err := g.SetActive(NodeRingIDs, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := g.Execute(CaptureContext{Sensor: "s", CaptureID: "c1", Stamp: time.Now()}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	cloud := g.Output()
	if cloud == nil || len(cloud.Points) != 1 {
		t.Fatalf("cloud = %#v, want one point", cloud)
	}
	if cloud.Points[0].RingID == 42 {
		t.Fatal("inactive ring-id node still ran")
	}
}

func TestGraphOutputReflectsLatestRun(t *testing.T) {
	scene := NewSimpleScene([]Sphere{{Center: sphereAhead, Radius: 1, Reflectivity: 0.9}}, false)
	g := NewGraph("test", NewExecutor(scene, 1))

	rays := []model.Ray{{AzimuthDeg: 0, ElevationDeg: 0, MinRange: 0.1, MaxRange: 50}}
	mustAppend(t, g, NodeRaySource, KindRaySource, RaySourceParams{Rays: rays})
	mustAppend(t, g, NodeRaytrace, KindRaytrace, RaytraceParams{})

	if err := g.Execute(CaptureContext{Sensor: "s", CaptureID: "first"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := g.Output(); got.CaptureID != "first" {
		t.Fatalf("CaptureID = %q, want first", got.CaptureID)
	}

	if err := g.Execute(CaptureContext{Sensor: "s", CaptureID: "second"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := g.Output(); got.CaptureID != "second" {
		t.Fatalf("CaptureID = %q, want second", got.CaptureID)
	}
}

func mustAppend(t *testing.T, g *Graph, name string, kind NodeKind, params any) {
	t.Helper()
	if err := g.Append(name, kind, params); err != nil {
		t.Fatalf("Append %s: %v", name, err)
	}
}
