package sqlitecas

import (
	"flag"
	"fmt"

	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/storage/casregistry"
)

var (
	flagPath string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "sqlite",
		Description: "SQLite database file CAS",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		ConfigKeys:  []string{"sqlite-path"},
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagPath, "sqlite-path", "", "SQLite database path (for --backend=sqlite)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagPath)
		},
		OpenWithConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return open(cfg["sqlite-path"])
		},
	})
}

func open(path string) (storage.CAS, func() error, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("missing --sqlite-path")
	}
	cas, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	return cas, cas.Close, nil
}
