// Package instance names the running process for log correlation across replicas.
package instance

import "github.com/angelmondragon/carrental-backend/pkg/env"

// ID prefers an explicit CARRENTAL_INSTANCE_ID, then the platform's dyno or host name.
func ID() string {
	return env.First("local", "CARRENTAL_INSTANCE_ID", "DYNO", "HOSTNAME")
}
