package cmd

import (
	"fmt"

	"k8s.io/cli-runtime/pkg/genericclioptions"

	"github.com/hashmap-kz/jkube/internal/kube"
	"github.com/hashmap-kz/jkube/internal/specenv"
)

// connectClient builds a cluster connection from an environment's
// spec.json, per spec.md §6.2/§6.5: apiServer takes priority; otherwise
// contextNames is tried in order until one resolves.
func connectClient(sp *specenv.Spec) (*kube.Client, error) {
	if sp.APIServer != "" {
		flags := genericclioptions.NewConfigFlags(true)
		flags.APIServer = &sp.APIServer
		flags.Namespace = &sp.Namespace
		return kube.NewFromConfigFlags(flags)
	}

	var lastErr error
	for _, ctxName := range sp.ContextNames {
		c, err := kube.NewFromContext("", ctxName, sp.Namespace)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no contextNames configured")
	}
	return nil, fmt.Errorf("connecting to cluster: %w", lastErr)
}
