package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/guidely/guidely/internal/server"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fx.Provide(newSnowflakeNode),
		server.Module,
	).Run()
}

// newSnowflakeNode builds the instance-wide ID generator. NODE_ID must
// differ per replica; single-instance deployments can leave it unset.
func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
