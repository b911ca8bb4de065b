package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ritzau/update-engine/pkg/cache"
	"github.com/ritzau/update-engine/pkg/config"
	"github.com/ritzau/update-engine/pkg/depman"
	"github.com/ritzau/update-engine/pkg/events"
	"github.com/ritzau/update-engine/pkg/logging"
	"github.com/ritzau/update-engine/pkg/model"
	"github.com/ritzau/update-engine/pkg/propagate"
	"github.com/ritzau/update-engine/pkg/pubsub"
	"github.com/ritzau/update-engine/pkg/registry"
	"github.com/ritzau/update-engine/pkg/store"
)

type engine struct {
	mem      *store.Memory
	cache    *cache.Cache
	manager  *depman.Manager
	registry *registry.Registry
	bus      *pubsub.Bus
	snapshot string
}

func main() {
	flags := pflag.NewFlagSet("update-engine", pflag.ExitOnError)
	flags.String("snapshot", "update-engine.json", "Path to the graph snapshot file")
	flags.Bool("watch", false, "Keep running and reload when the snapshot changes on disk")
	flags.String("verbosity", "info", "Log level: trace, debug, info, warn, error")
	flags.Bool("json-logs", false, "Log in JSON format instead of compact console output")
	flags.Int("event-buffer", 16, "Events buffered per topic for late subscribers")

	registerSpec := flags.String("register", "", "Register a component: id:name:type:project[:version]")
	setVersion := flags.String("set-version", "", "Update a component version: id:version")
	addDep := flags.String("add-dep", "", "Add a dependency edge: source:target[:type]")
	impact := flags.String("impact", "", "Print the transitive dependents (impact set) of a component")
	depsOf := flags.String("deps", "", "Print the direct dependencies of a component")
	dependentsOf := flags.String("dependents", "", "Print the direct dependents of a component")
	listProject := flags.String("list", "", "List the components of a project")
	verify := flags.Bool("verify", false, "Load and validate the snapshot, then exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.JSONLogs {
		logging.SetJSONOutput(logging.ParseLevel(cfg.Verbosity))
	} else {
		logging.SetLevel(logging.ParseLevel(cfg.Verbosity))
	}

	e, err := buildEngine(cfg)
	if err != nil {
		logging.Fatal("failed to open graph snapshot", "path", cfg.Snapshot, "error", err)
	}
	defer e.bus.Close()

	ctx := context.Background()

	switch {
	case *verify:
		snap := e.mem.Snapshot()
		fmt.Printf("Snapshot OK: %d components, %d dependencies, no cycles\n",
			len(snap.Components), len(snap.Dependencies))

	case *registerSpec != "":
		runAndReport(e, func() error { return e.register(ctx, *registerSpec) })

	case *setVersion != "":
		runAndReport(e, func() error { return e.setVersion(ctx, *setVersion) })

	case *addDep != "":
		runAndReport(e, func() error { return e.addDependency(ctx, *addDep) })

	case *impact != "":
		if err := e.printImpact(ctx, *impact); err != nil {
			logging.Fatal("impact query failed", "component", *impact, "error", err)
		}

	case *depsOf != "":
		if err := e.printNeighbors(ctx, *depsOf, false); err != nil {
			logging.Fatal("dependency query failed", "component", *depsOf, "error", err)
		}

	case *dependentsOf != "":
		if err := e.printNeighbors(ctx, *dependentsOf, true); err != nil {
			logging.Fatal("dependent query failed", "component", *dependentsOf, "error", err)
		}

	case *listProject != "":
		if err := e.printProject(ctx, *listProject); err != nil {
			logging.Fatal("project listing failed", "project", *listProject, "error", err)
		}

	case cfg.Watch:
		if err := e.watch(ctx); err != nil {
			logging.Fatal("watch mode failed", "error", err)
		}

	default:
		flags.Usage()
	}
}

func buildEngine(cfg *config.Config) (*engine, error) {
	mem := store.NewMemory()
	if err := mem.LoadFile(cfg.Snapshot); err != nil {
		return nil, err
	}

	bus := pubsub.NewBus()
	for _, topic := range []string{
		events.TopicComponentUpdate,
		events.TopicDependencyChange,
		events.TopicUpdatePropagation,
	} {
		bus.ConfigureTopic(topic, pubsub.TopicConfig{BufferSize: cfg.EventBuffer, ReplayAll: true})
	}

	cached := cache.New(mem)
	manager := depman.New(cached, nil)
	prop := propagate.New(manager, bus)
	manager.SetNotifier(prop)
	reg := registry.New(cached, prop)

	return &engine{
		mem:      mem,
		cache:    cached,
		manager:  manager,
		registry: reg,
		bus:      bus,
		snapshot: cfg.Snapshot,
	}, nil
}

// runAndReport executes a mutation, saves the snapshot and prints the events
// the mutation produced.
func runAndReport(e *engine, mutate func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subs := make([]pubsub.Subscription, 0, 3)
	for _, topic := range []string{
		events.TopicComponentUpdate,
		events.TopicDependencyChange,
		events.TopicUpdatePropagation,
	} {
		sub, err := e.bus.Subscribe(ctx, topic)
		if err != nil {
			logging.Fatal("failed to subscribe to bus", "topic", topic, "error", err)
		}
		subs = append(subs, sub)
	}

	if err := mutate(); err != nil {
		logging.Fatal("mutation failed", "error", err)
	}
	if err := e.mem.SaveFile(e.snapshot); err != nil {
		logging.Fatal("failed to save snapshot", "path", e.snapshot, "error", err)
	}

	for _, sub := range subs {
		drain(sub)
	}
}

func drain(sub pubsub.Subscription) {
	for {
		select {
		case event := <-sub.Events():
			fmt.Printf("event %s %s %s\n", event.Topic, event.Type, string(event.Data))
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func (e *engine) register(ctx context.Context, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) < 4 {
		return fmt.Errorf("register spec %q: want id:name:type:project[:version]", spec)
	}
	draft := model.Component{
		ComponentID: parts[0],
		Name:        parts[1],
		Type:        model.ComponentType(strings.ToUpper(parts[2])),
		ProjectID:   parts[3],
	}
	if len(parts) > 4 {
		draft.Version = parts[4]
	}

	stored, err := e.registry.Register(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s) in project %s\n", stored.ComponentID, stored.Type, stored.ProjectID)
	return nil
}

func (e *engine) setVersion(ctx context.Context, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return fmt.Errorf("set-version spec %q: want id:version", spec)
	}

	updated, err := e.registry.ApplyUpdate(ctx, parts[0], registry.Patch{Version: &parts[1]})
	if err != nil {
		return err
	}
	fmt.Printf("updated %s to version %s\n", updated.ComponentID, updated.Version)
	return nil
}

func (e *engine) addDependency(ctx context.Context, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return fmt.Errorf("add-dep spec %q: want source:target[:type]", spec)
	}
	depType := model.DepRuntime
	if len(parts) > 2 {
		depType = model.DependencyType(strings.ToUpper(parts[2]))
	}

	if err := e.manager.AddDependency(ctx, parts[0], parts[1], depType, ""); err != nil {
		return err
	}
	fmt.Printf("added dependency %s -> %s (%s)\n", parts[0], parts[1], depType)
	return nil
}

func (e *engine) printImpact(ctx context.Context, componentID string) error {
	depths, err := e.manager.TransitiveDependentDepths(ctx, componentID)
	if err != nil {
		return err
	}
	if len(depths) == 0 {
		fmt.Printf("%s has no dependents\n", componentID)
		return nil
	}

	ids := make([]string, 0, len(depths))
	for id := range depths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if depths[ids[i]] != depths[ids[j]] {
			return depths[ids[i]] < depths[ids[j]]
		}
		return ids[i] < ids[j]
	})

	fmt.Printf("Impact of changing %s (%d components):\n", componentID, len(ids))
	for _, id := range ids {
		fmt.Printf("  depth %d  %s\n", depths[id], id)
	}
	return nil
}

func (e *engine) printNeighbors(ctx context.Context, componentID string, incoming bool) error {
	var (
		comps []model.Component
		err   error
		label string
	)
	if incoming {
		comps, err = e.manager.DirectDependents(ctx, componentID)
		label = "dependents"
	} else {
		comps, err = e.manager.DirectDependencies(ctx, componentID)
		label = "dependencies"
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s has %d direct %s\n", componentID, len(comps), label)
	for _, c := range comps {
		fmt.Printf("  %s (%s, %s)\n", c.ComponentID, c.Type, c.Version)
	}
	return nil
}

func (e *engine) printProject(ctx context.Context, projectID string) error {
	comps, err := e.registry.FindByProject(ctx, projectID)
	if err != nil {
		return err
	}

	sort.Slice(comps, func(i, j int) bool { return comps[i].ComponentID < comps[j].ComponentID })
	fmt.Printf("Project %s: %d components\n", projectID, len(comps))
	for _, c := range comps {
		fmt.Printf("  %-24s %-14s %-10s %s\n", c.ComponentID, c.Type, c.Status, c.Version)
	}
	return nil
}

// watch keeps the process alive, reloading the store when the snapshot file
// changes and printing bus events as they arrive.
func (e *engine) watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher, err := store.WatchSnapshot(e.mem, e.snapshot, func(snap store.Snapshot) {
		fmt.Printf("reloaded: %d components, %d dependencies\n",
			len(snap.Components), len(snap.Dependencies))
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	subs := make([]pubsub.Subscription, 0, 3)
	for _, topic := range []string{
		events.TopicComponentUpdate,
		events.TopicDependencyChange,
		events.TopicUpdatePropagation,
	} {
		sub, err := e.bus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("watching for changes, Ctrl-C to stop")
	for {
		select {
		case <-sigc:
			return nil
		case event := <-subs[0].Events():
			fmt.Printf("event %s %s %s\n", event.Topic, event.Type, string(event.Data))
		case event := <-subs[1].Events():
			fmt.Printf("event %s %s %s\n", event.Topic, event.Type, string(event.Data))
		case event := <-subs[2].Events():
			fmt.Printf("event %s %s %s\n", event.Topic, event.Type, string(event.Data))
		}
	}
}
