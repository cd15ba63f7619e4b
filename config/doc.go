// Package config loads, validates and distributes host configuration.
//
// Config describes the platform identity, the NATS connection, runtime
// tuning, the metrics and health endpoints, and the component pipeline:
// component instances, the execution contexts that drive them and the
// connections between their ports.
//
// # Loading
//
// Loader layers JSON or YAML files over built-in defaults with last-wins
// semantics, then applies RTM_-prefixed environment overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.json")
//	loader.AddLayer("config/production.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Environment keys join the section and field with underscores:
//
//	export RTM_PLATFORM_INSTANCE=host1
//	export RTM_NATS_URLS="nats://server1:4222,nats://server2:4222"
//	export RTM_RUNTIME_TICK_INTERVAL=500us
//
// Keys are case-insensitive, so component instance names are lowercased.
// Each component's "config" object is handed to its factory as raw JSON.
//
// # Pipelines
//
//	{
//	  "components": {
//	    "seqout0": {"type": "sequence-out", "enabled": true, "config": {"port": "out"}},
//	    "filein0": {"type": "file-in", "enabled": true}
//	  },
//	  "execution_contexts": [{"rate": 10, "components": ["seqout0", "filein0"]}],
//	  "connections": [{
//	    "name": "c0", "from": "seqout0.out", "to": "filein0.in",
//	    "properties": {"dataport.interface_type": "corba_cdr"}
//	  }]
//	}
//
// Validate rejects connections and execution contexts naming unknown or
// disabled components, and components listed in more than one context.
//
// # Dynamic Configuration
//
// Manager mirrors the configuration to the rtm_config NATS KV bucket and
// watches it. Each component is stored under "components.<name>"; platform,
// runtime, execution_contexts and connections are single keys.
//
//	cm, err := config.NewConfigManager(ctx, cfg, natsClient, logger)
//	if err := cm.Start(ctx); err != nil {
//		return err
//	}
//	defer cm.Stop(5 * time.Second)
//
//	for update := range cm.OnChange("components.*") {
//		logger.Info("Component config changed", "key", update.Path)
//	}
//
// SafeConfig guards the current configuration; Get returns a deep copy and
// Update validates before swapping.
package config
