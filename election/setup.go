package election

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tolelom/votechain/config"
	"github.com/tolelom/votechain/crypto"
	"github.com/tolelom/votechain/events"
	"github.com/tolelom/votechain/indexer"
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/node"
	"github.com/tolelom/votechain/pki"
	"github.com/tolelom/votechain/roll"
	"github.com/tolelom/votechain/storage"
	"github.com/tolelom/votechain/transport"
	"github.com/tolelom/votechain/wallet"
)

// openChain opens a LevelDB-backed chain under dataDir/kind/id, using a
// one-database-per-replica layout. The returned *storage.LevelDB is
// tracked by the caller so Election.Close can release it.
func openChain(dataDir string, kind ledger.LedgerKind, id string) (*ledger.Chain, *storage.LevelDB, error) {
	path := filepath.Join(dataDir, string(kind), id)
	db, err := storage.NewLevelDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open chain db %s: %w", path, err)
	}
	store := storage.NewLevelBlockStore(db)
	chain := ledger.NewChain(kind, store)
	if err := chain.Init(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init chain %s: %w", path, err)
	}
	return chain, db, nil
}

// nodeIdentity returns id's keypair. With keyDir empty it mints a fresh
// in-memory keypair every call, as a single-process demo run does. With
// keyDir set it persists the keypair to keyDir/<id>.key on first mint and
// restores it from there on every later call, so a replica's PKI
// fingerprint survives a process restart.
func nodeIdentity(keyDir, password, id string) (crypto.PrivateKey, crypto.PublicKey, error) {
	if keyDir == "" {
		return crypto.GenerateKeyPair()
	}
	path := filepath.Join(keyDir, id+".key")
	if _, err := os.Stat(path); err == nil {
		priv, err := wallet.LoadKey(path, password)
		if err != nil {
			return nil, nil, fmt.Errorf("load persisted key for %s: %w", id, err)
		}
		return priv, priv.Public(), nil
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("stat key file for %s: %w", id, err)
	}
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generate key for %s: %w", id, err)
	}
	if err := wallet.SaveKey(path, password, priv); err != nil {
		return nil, nil, fmt.Errorf("persist key for %s: %w", id, err)
	}
	return priv, pub, nil
}

// createVoterNodes mints or restores count key pairs and a node for
// each: resolve the identity, build the node, then register it into the
// ledger's PKI.
func createVoterNodes(cfg *config.Config, directory *pki.Directory, policy node.Policy, emitter *events.Emitter, count int, namePrefix, keyDir, password string) ([]*node.Node, []*storage.LevelDB, error) {
	nodes := make([]*node.Node, 0, count)
	dbs := make([]*storage.LevelDB, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-%d", namePrefix, i+1)
		priv, pub, err := nodeIdentity(keyDir, password, id)
		if err != nil {
			return nil, dbs, err
		}
		chain, db, err := openChain(cfg.DataDir, ledger.KindVoterLedger, id)
		if err != nil {
			return nil, dbs, err
		}
		dbs = append(dbs, db)
		n := node.NewVoterNode(id, priv, chain, directory, policy, emitter)
		directory.Register(pki.PeerHandle{ID: id, PubKey: pub, IsAdversary: policy.IsAdversary()})
		nodes = append(nodes, n)
	}
	return nodes, dbs, nil
}

func createBallotNodes(cfg *config.Config, directory *pki.Directory, policy node.Policy, template *ledger.BallotTemplate, emitter *events.Emitter, count int, namePrefix, keyDir, password string) ([]*node.Node, []*storage.LevelDB, error) {
	nodes := make([]*node.Node, 0, count)
	dbs := make([]*storage.LevelDB, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-%d", namePrefix, i+1)
		priv, pub, err := nodeIdentity(keyDir, password, id)
		if err != nil {
			return nil, dbs, err
		}
		chain, db, err := openChain(cfg.DataDir, ledger.KindBallotLedger, id)
		if err != nil {
			return nil, dbs, err
		}
		dbs = append(dbs, db)
		n := node.NewBallotNode(id, priv, chain, directory, policy, template, emitter)
		directory.Register(pki.PeerHandle{ID: id, PubKey: pub, IsAdversary: policy.IsAdversary()})
		nodes = append(nodes, n)
	}
	return nodes, dbs, nil
}

// splitSeedPeers partitions cfg.SeedPeers by ledger kind.
func splitSeedPeers(peers []config.SeedPeer) (voterSeeds, ballotSeeds []config.SeedPeer) {
	for _, sp := range peers {
		switch ledger.LedgerKind(sp.Kind) {
		case ledger.KindVoterLedger:
			voterSeeds = append(voterSeeds, sp)
		case ledger.KindBallotLedger:
			ballotSeeds = append(ballotSeeds, sp)
		}
	}
	return voterSeeds, ballotSeeds
}

// registerSeedPeers adds every remote replica in seeds to directory, so
// this process's nodes can verify signatures from peers they never mint
// a local node.Node for. Remote peers are registered non-adversarial:
// this side has no way to know a remote process's configured Policy, and
// the agreement threshold tolerates a bounded number of them regardless.
func registerSeedPeers(directory *pki.Directory, seeds []config.SeedPeer) error {
	for _, sp := range seeds {
		pub, err := crypto.PubKeyFromHex(sp.PubKey)
		if err != nil {
			return fmt.Errorf("seed peer %s: decode pub_key: %w", sp.ID, err)
		}
		directory.Register(pki.PeerHandle{ID: sp.ID, PubKey: pub, IsAdversary: false})
	}
	return nil
}

// buildNetwork wires nodesByID as a plain node.LocalNetwork, or as a
// transport.MeshNetwork layered over it when seeds names remote replicas
// for this ledger, so a multi-process deployment's cohort spans both.
func buildNetwork(nodesByID map[string]*node.Node, seeds []config.SeedPeer, tlsCfg *tls.Config) node.Network {
	local := node.NewLocalNetwork(nodesByID)
	if len(seeds) == 0 {
		return local
	}
	addrs := make([]transport.SeedPeerAddr, len(seeds))
	for i, sp := range seeds {
		addrs[i] = transport.SeedPeerAddr{ID: sp.ID, Addr: sp.Addr, Kind: ledger.LedgerKind(sp.Kind)}
	}
	return transport.NewMeshNetwork(local, transport.NewClient(addrs, tlsCfg))
}

// startLocalServers starts one transport.Server per local node, bound to
// sequential ports starting at basePort, so a process hosting these
// nodes is reachable by other processes' seed peer entries.
func startLocalServers(nodes []*node.Node, basePort int, tlsCfg *tls.Config) ([]*transport.Server, error) {
	servers := make([]*transport.Server, 0, len(nodes))
	for i, n := range nodes {
		srv := transport.NewServer(n, tlsCfg)
		if err := srv.Start(fmt.Sprintf(":%d", basePort+i)); err != nil {
			for _, started := range servers {
				started.Stop()
			}
			return nil, fmt.Errorf("start transport server for %s: %w", n.ID, err)
		}
		servers = append(servers, srv)
	}
	return servers, nil
}

// Setup builds a complete Election from cfg: loads the voter roll,
// requires an already-finalized ballot template, mints or restores the
// configured number of nodes per ledger (honest plus, when
// AdversarialMode is set, a bounded number running adversary policies),
// commits each ledger's genesis block on every replica that does not
// already have one, and wires the PKI, networks and secondary indexes.
// When cfg.SeedPeers names remote replicas, Setup also registers them in
// the relevant PKI directory and starts a transport.Server per local
// node so this process can take part in a multi-process deployment.
func Setup(cfg *config.Config, template *ledger.BallotTemplate, timestamp int64) (*Election, error) {
	if !template.Finalized() {
		return nil, fmt.Errorf("election: ballot template must be finalized before setup")
	}

	voterRoll, err := roll.Load(cfg.VoterRollPath)
	if err != nil {
		return nil, fmt.Errorf("load voter roll: %w", err)
	}

	voterDirectory := pki.NewDirectory()
	ballotDirectory := pki.NewDirectory()
	emitter := events.NewEmitter()

	keyDir := cfg.KeyDir
	if keyDir != "" {
		if err := os.MkdirAll(keyDir, 0700); err != nil {
			return nil, fmt.Errorf("mkdir key dir: %w", err)
		}
	}
	password := os.Getenv("VOTECHAIN_PASSWORD")

	adversarialCount := 0
	if cfg.AdversarialMode {
		adversarialCount = cfg.AdversarialNodesPerLedger
	}
	honestVoterCount := cfg.TotalVoterNodes - adversarialCount
	honestBallotCount := cfg.TotalBallotNodes - adversarialCount
	if honestVoterCount <= 0 || honestBallotCount <= 0 {
		return nil, fmt.Errorf("election: adversarial_nodes_per_ledger leaves no honest nodes")
	}

	var dbs []*storage.LevelDB
	closeAll := func() {
		for _, db := range dbs {
			db.Close()
		}
	}

	honestVoterNodes, voterDBs, err := createVoterNodes(cfg, voterDirectory, node.NewHonestPolicy(), emitter, honestVoterCount, "auth", keyDir, password)
	dbs = append(dbs, voterDBs...)
	if err != nil {
		closeAll()
		return nil, err
	}
	honestBallotNodes, ballotDBs, err := createBallotNodes(cfg, ballotDirectory, node.NewHonestPolicy(), template, emitter, honestBallotCount, "booth", keyDir, password)
	dbs = append(dbs, ballotDBs...)
	if err != nil {
		closeAll()
		return nil, err
	}

	var adversaryVoterNodes, adversaryBallotNodes []*node.Node
	if cfg.AdversarialMode {
		var advDBs []*storage.LevelDB
		adversaryVoterNodes, advDBs, err = createVoterNodes(cfg, voterDirectory, node.NewAuthBypassPolicy(), emitter, adversarialCount, "auth-adv", keyDir, password)
		dbs = append(dbs, advDBs...)
		if err != nil {
			closeAll()
			return nil, err
		}
		adversaryBallotNodes, advDBs, err = createBallotNodes(cfg, ballotDirectory, node.NewBallotForgerPolicy(), template, emitter, adversarialCount, "booth-adv", keyDir, password)
		dbs = append(dbs, advDBs...)
		if err != nil {
			closeAll()
			return nil, err
		}
	}

	voterSeeds, ballotSeeds := splitSeedPeers(cfg.SeedPeers)
	if err := registerSeedPeers(voterDirectory, voterSeeds); err != nil {
		closeAll()
		return nil, err
	}
	if err := registerSeedPeers(ballotDirectory, ballotSeeds); err != nil {
		closeAll()
		return nil, err
	}

	voterDirectory.Freeze()
	ballotDirectory.Freeze()

	allVoterNodes := append(append([]*node.Node{}, honestVoterNodes...), adversaryVoterNodes...)
	allBallotNodes := append(append([]*node.Node{}, honestBallotNodes...), adversaryBallotNodes...)

	voterGenesis, err := config.CreateVoterGenesis(voterRoll, timestamp)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("voter genesis: %w", err)
	}
	ballotGenesis, err := config.CreateBallotGenesis(template, timestamp)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("ballot genesis: %w", err)
	}
	for _, n := range allVoterNodes {
		if n.Chain().CurrentTip() == nil {
			if err := n.Chain().Genesis(voterGenesis); err != nil {
				closeAll()
				return nil, fmt.Errorf("commit voter genesis on %s: %w", n.ID, err)
			}
		}
		if err := n.LoadGenesisState(); err != nil {
			closeAll()
			return nil, err
		}
	}
	for _, n := range allBallotNodes {
		if n.Chain().CurrentTip() == nil {
			if err := n.Chain().Genesis(ballotGenesis); err != nil {
				closeAll()
				return nil, fmt.Errorf("commit ballot genesis on %s: %w", n.ID, err)
			}
		}
		if err := n.LoadGenesisState(); err != nil {
			closeAll()
			return nil, err
		}
	}

	voterNodesByID := make(map[string]*node.Node, len(allVoterNodes))
	for _, n := range allVoterNodes {
		voterNodesByID[n.ID] = n
	}
	ballotNodesByID := make(map[string]*node.Node, len(allBallotNodes))
	for _, n := range allBallotNodes {
		ballotNodesByID[n.ID] = n
	}

	idxDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "index"))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("open index db: %w", err)
	}
	dbs = append(dbs, idxDB)
	idx := indexer.New(idxDB, emitter)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load tls config: %w", err)
	}

	voterNetwork := buildNetwork(voterNodesByID, voterSeeds, tlsCfg)
	ballotNetwork := buildNetwork(ballotNodesByID, ballotSeeds, tlsCfg)

	var transportServers []*transport.Server
	if len(cfg.SeedPeers) > 0 {
		voterServers, err := startLocalServers(allVoterNodes, cfg.P2PPort, tlsCfg)
		if err != nil {
			closeAll()
			return nil, err
		}
		transportServers = append(transportServers, voterServers...)
		ballotServers, err := startLocalServers(allBallotNodes, cfg.P2PPort+len(allVoterNodes), tlsCfg)
		if err != nil {
			for _, srv := range transportServers {
				srv.Stop()
			}
			closeAll()
			return nil, err
		}
		transportServers = append(transportServers, ballotServers...)
	}

	return &Election{
		cfg:              cfg,
		template:         template,
		voterRoll:        voterRoll,
		emitter:          emitter,
		indexer:          idx,
		voterDirectory:   voterDirectory,
		ballotDirectory:  ballotDirectory,
		voterNodes:       allVoterNodes,
		ballotNodes:      allBallotNodes,
		voterNetwork:     voterNetwork,
		ballotNetwork:    ballotNetwork,
		votersVoted:      make(map[string]bool),
		dbs:              dbs,
		transportServers: transportServers,
	}, nil
}
