package padsvc

import (
	"encoding/json"

	"github.com/neuroplastio/neio-pad/internal/padsvc/linux"
	"github.com/neuroplastio/neio-pad/padapi"
)

func registerPlatformBackends(reg *BackendRegistry) {
	reg.Register("linux", func(config json.RawMessage, p *BackendProvider) (padapi.Backend, error) {
		cfg, err := linux.ParseConfig(config)
		if err != nil {
			return nil, err
		}
		return linux.NewBackend(p.Log.Named("linux"), cfg), nil
	})
}
