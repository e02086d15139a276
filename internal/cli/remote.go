package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/star/ascas/internal/client"
	"github.com/star/ascas/internal/config"
	"github.com/star/ascas/internal/resolver"
)

const defaultServer = "http://localhost:8080"

// remoteOptions are the flags of commands that talk to a running server.
type remoteOptions struct {
	Server  string
	Token   string
	Timeout time.Duration
}

func addRemoteFlags(cmd *cobra.Command, o *remoteOptions) {
	cmd.Flags().StringVar(&o.Server, "server", "", "server base URL (env ASCAS_SERVER, default "+defaultServer+")")
	cmd.Flags().StringVar(&o.Token, "token", "", "bearer token (env ASCAS_AUTH_TOKEN)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 60*time.Second, "request timeout")
}

// client resolves unset flags from the environment and builds a client.
func (o *remoteOptions) client() *client.Client {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault("server", defaultServer)
	_ = v.BindEnv("server")
	_ = v.BindEnv("auth.token")

	server, token := o.Server, o.Token
	if server == "" {
		server = v.GetString("server")
	}
	if token == "" {
		token = v.GetString("auth.token")
	}

	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(server, opts...)
}

// parseEpochFlag accepts RFC 3339 or "" for the server default.
func parseEpochFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --epoch %q: must be RFC 3339", s))
	}
	return t.UTC(), nil
}

// errorCode names an error for CLIError.Code.
func errorCode(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Body.Kind != "" {
		return string(apiErr.Body.Kind)
	}
	var qe *resolver.QueryError
	if errors.As(err, &qe) {
		return string(qe.Kind)
	}
	return "error"
}
