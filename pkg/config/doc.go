// Package config loads the node's YAML configuration file into a Config,
// and assembles an AppContext from it: the one place every collaborator
// (registry, scanner, notifier, HTTP layer) gets wired together. There
// are no package-level singletons anywhere in this module — everything
// downstream takes what it needs by reference from the AppContext.
package config
