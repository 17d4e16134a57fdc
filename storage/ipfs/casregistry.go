package ipfs

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/storage/casregistry"
)

var (
	flagBin      string
	flagRepoPath string
	flagPin      bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		ConfigKeys:  []string{"ipfs-bin", "ipfs-path", "ipfs-pin"},
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagRepoPath, "ipfs-path", "", "IPFS_PATH override (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "ipfs-pin", false, "Pin blocks on put (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return New(options(flagBin, flagRepoPath, flagPin)), nil, nil
		},
		OpenWithConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			pin, err := parseBool(cfg["ipfs-pin"])
			if err != nil {
				return nil, nil, fmt.Errorf("ipfs-pin: %w", err)
			}
			return New(options(cfg["ipfs-bin"], cfg["ipfs-path"], pin)), nil, nil
		},
	})
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func options(bin, repo string, pin bool) Options {
	opts := Options{Bin: bin, Pin: pin}
	if repo != "" {
		opts.Env = append(os.Environ(), "IPFS_PATH="+repo)
	}
	return opts
}
