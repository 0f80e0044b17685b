package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synnergy-da/core"
	"synnergy-da/pkg/config"
)

// authorityNotifier adapts an Authority into the SignerNotifier seam a
// Replica expects, fixing the caller identity each replica presents.
type authorityNotifier struct {
	authority *core.Authority
	caller    core.ReplicaID
}

func (n authorityNotifier) NotifyGenerateConfirmation(digest [32]byte) {
	if err := n.authority.InsertDigest(n.caller, digest); err != nil {
		logrus.WithError(err).WithField("replica", n.caller).Warn("dad: insert_digest rejected")
	}
}

// node bundles a single-process deployment: one authority, a handful of
// in-memory replicas, and a client wired over a local transport. It exists
// to demonstrate the wiring; a networked deployment replaces
// LocalReplicaTransport and LocalECDSASigner with RPC-backed equivalents.
type node struct {
	authority *core.Authority
	client    *core.Client
	replicas  map[core.ReplicaID]*core.Replica
}

func newNode(cfg *config.Config, log *logrus.Logger) (*node, error) {
	signer, err := core.NewLocalECDSASigner()
	if err != nil {
		return nil, fmt.Errorf("dad: generate signer key: %w", err)
	}

	sigCfg := core.DefaultSignatureConfig()
	sigCfg.ConfirmationBatchSize = cfg.Signer.ConfirmationBatchSize
	sigCfg.ConfirmationLiveTime = cfg.Signer.ConfirmationLiveTime
	sigCfg.Owner = cfg.Signer.Owner
	metrics := core.NewMetrics()
	authority := core.NewAuthority(sigCfg, log, signer, metrics)

	replicaIDs := []core.ReplicaID{"replica-a", "replica-b", "replica-c"}
	storageCfg := core.DefaultStorageConfig()
	storageCfg.CanisterStorageThreshold = cfg.Replica.CanisterStorageThreshold
	storageCfg.QueryResponseSize = cfg.Replica.QueryResponseSize
	storageCfg.Owner = cfg.Replica.Owner

	replicas := make(map[core.ReplicaID]*core.Replica, len(replicaIDs))
	for _, id := range replicaIDs {
		notifier := authorityNotifier{authority: authority, caller: id}
		replicas[id] = core.NewReplica(id, storageCfg, log, core.NewInMemoryStore(), notifier, metrics)
	}

	transport := core.NewLocalReplicaTransport(replicas, "dad-cli")
	table, err := core.NewSelectionTable(replicaIDs, cfg.Client.CollectionSize, cfg.Client.ReplicaNum)
	if err != nil {
		return nil, fmt.Errorf("dad: build selection table: %w", err)
	}

	clientCfg := core.DefaultClientConfig()
	clientCfg.WriteAttempts = cfg.Client.WriteAttempts
	clientCfg.WriteBackoff = cfg.Client.WriteBackoff
	clientCfg.BlobLiveTime = cfg.Client.BlobLiveTime
	clientCfg.ReuploadScan = cfg.Client.ReuploadScan
	clientCfg.ReuploadRetry = cfg.Client.ReuploadRetry
	clientCfg.ReadPollInterval = cfg.Client.ReadPollInterval
	if cfg.Client.SpillDir != "" {
		clientCfg.SpillDir = cfg.Client.SpillDir
	}
	client := core.NewClient(clientCfg, log, transport, table, authority)
	client.StartReuploadLoop()

	return &node{authority: authority, client: client, replicas: replicas}, nil
}

func main() {
	// Load environment variables from a project .env if present, matching
	// the teacher's cmd entrypoints.
	_ = godotenv.Load(".env")

	log := logrus.StandardLogger()

	rootCmd := &cobra.Command{Use: "dad", Short: "data availability disperser"}
	rootCmd.AddCommand(pushCmd(log))
	rootCmd.AddCommand(getCmd(log))
	rootCmd.AddCommand(confirmCmd(log))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func pushCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "push [data]",
		Short: "disperse a blob and print its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			n, err := newNode(cfg, log)
			if err != nil {
				return err
			}
			key := n.client.PushBlob([]byte(args[0]))
			cidStr, err := key.CID()
			if err != nil {
				return fmt.Errorf("dad: render cid: %w", err)
			}
			fmt.Printf("digest=%s cid=%s expiry_ns=%d replicas=%v\n", hex.EncodeToString(key.Digest[:]), cidStr, key.ExpiryTimestampNs, key.Routing.HostReplicas)
			return nil
		},
	}
}

func getCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "get [digest-hex]",
		Short: "fetch a blob by digest (not supported by this single-process binary: always returns an error)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("dad: get requires a long-lived node process; see core.Client.GetBlob")
		},
	}
}

func confirmCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm [digest-hex]",
		Short: "query confirmation status for a digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil || len(raw) != 32 {
				return fmt.Errorf("dad: digest must be 32 hex-encoded bytes")
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			n, err := newNode(cfg, log)
			if err != nil {
				return err
			}
			var digest [32]byte
			copy(digest[:], raw)
			status := n.authority.GetConfirmation(digest)
			switch status.Kind {
			case core.StatusConfirmed:
				fmt.Printf("confirmed root=%s signature=%s\n", hex.EncodeToString(status.Confirmed.Root[:]), status.Confirmed.Signature)
			case core.StatusPending:
				fmt.Println("pending")
			default:
				fmt.Println("invalid")
			}
			return nil
		},
	}
}
