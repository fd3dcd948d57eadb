package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxUploadBytes <= 0 {
			add("server.max_upload_bytes must be > 0")
		}
		c.validateCluster(add)
		c.validateInterpret(add)
	case "recommend", "classify":
		c.validateCluster(add)
	case "analyze":
		c.validateCluster(add)
		c.validateInterpret(add)
	case "roads":
		if c.OSM.RequestsPerSecond <= 0 {
			add("osm.requests_per_second must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateCluster(add func(string, ...any)) {
	cl := c.Cluster
	switch cl.Family {
	case "kmeans", "kmeans-lite":
	default:
		add("cluster.family %q must be kmeans or kmeans-lite", cl.Family)
	}
	if cl.MinClusters < 1 || cl.MaxClusters < cl.MinClusters {
		add("cluster.min_clusters must be >= 1 and <= cluster.max_clusters")
	}
	if cl.Repeat < 1 {
		add("cluster.repeat must be >= 1")
	}
	if cl.NInit < 1 {
		add("cluster.n_init must be >= 1")
	}
	if cl.DefaultClusters < 2 || cl.DefaultClusters > 20 {
		add("cluster.default_clusters must be between 2 and 20")
	}
	if cl.Parallelism < 1 || cl.Parallelism > 64 {
		add("cluster.parallelism must be between 1 and 64")
	}
}

func (c *Config) validateInterpret(add func(string, ...any)) {
	in := c.Interpret
	if in.SDWeight < 0 || in.EntropyWeight < 0 || in.SDWeight+in.EntropyWeight == 0 {
		add("interpret weights must be >= 0 and not both zero")
	}
	if in.Bins < 2 {
		add("interpret.bins must be >= 2")
	}
	if in.LOFNeighbors < 1 {
		add("interpret.lof_neighbors must be >= 1")
	}
	if in.LOFThreshold <= 0 {
		add("interpret.lof_threshold must be > 0")
	}
	if in.IQRMultiplier <= 0 {
		add("interpret.iqr_multiplier must be > 0")
	}
}
