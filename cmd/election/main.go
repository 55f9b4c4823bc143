// Command election runs a replicated electronic voting demonstrator: it
// boots the voter-authentication and ballot ledgers' node populations,
// serves an RPC endpoint, runs the background consensus loop for both
// ledgers, and drives an interactive menu mirroring a voter's experience
// at an authentication booth and a voting computer.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tolelom/votechain/config"
	"github.com/tolelom/votechain/consensus"
	"github.com/tolelom/votechain/crypto/certgen"
	"github.com/tolelom/votechain/election"
	"github.com/tolelom/votechain/ledger"
	"github.com/tolelom/votechain/rpc"
	"github.com/tolelom/votechain/wallet"

	// Import transaction-kind modules to trigger their init() self-registration.
	_ "github.com/tolelom/votechain/txexec/modules/authticket"
	_ "github.com/tolelom/votechain/txexec/modules/ballotcast"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "node.key", "path to keystore file (genkey mode only)")
	genKey := flag.Bool("genkey", false, "generate a new node key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit")
	simulate := flag.Bool("simulate", false, "cast scripted votes for the entire voter roll, then exit")
	logPath := flag.String("log", "logs/node.log", "path to the log file the menu's 'View logs' option reads")
	flag.Parse()

	password := os.Getenv("VOTECHAIN_PASSWORD")
	if password == "" {
		log.Println("WARNING: VOTECHAIN_PASSWORD not set — keystore will use an empty password")
	}

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key: %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	if *genCerts != "" {
		if err := certgen.GenerateAll(*genCerts, "election-node", nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s\n", *genCerts)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	if dir := logDir(*logPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("mkdir log dir: %v", err)
		}
	}
	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	template := defaultBallot(cfg.Election)

	e, err := election.Setup(cfg, template, time.Now().UnixNano())
	if err != nil {
		log.Fatalf("election setup: %v", err)
	}
	defer e.Close()
	if len(cfg.SeedPeers) > 0 {
		log.Printf("multi-process mode: %d seed peer(s) configured, local replicas serving on ports starting at %d", len(cfg.SeedPeers), cfg.P2PPort)
	}
	if cfg.KeyDir != "" {
		log.Printf("node identities persisted under %s", cfg.KeyDir)
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(e)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)

	done := make(chan struct{})
	interval := time.Duration(cfg.ConsensusRoundIntervalSeconds) * time.Second
	e.RunConsensusLoop(interval, done, func(ledgerName string, report *consensus.Report) {
		log.Printf("[consensus] %s round: cohort=%d committed=%d", ledgerName, report.CohortSize, len(report.Committed))
	})

	if *simulate {
		runSimulation(e)
		close(done)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	menuDone := make(chan struct{})
	go runMenu(e, *logPath, menuDone)

	select {
	case <-sigCh:
		log.Println("Shutting down...")
	case <-menuDone:
	}
	close(done)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func logDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// defaultBallot mirrors the original demonstrator's hardcoded two-contest
// ballot (President, Vice President), each allowing a single choice.
func defaultBallot(election string) *ledger.BallotTemplate {
	t := ledger.NewBallotTemplate(election)
	t.AddItem("President", "Head of executive branch", []string{"Obama(D)", "Bloomberg(R)"}, 1)
	t.AddItem("Vice President", "Executive right below President", []string{"Joe Biden(D)", "Bradley Tusk(R)"}, 1)
	t.Finalize()
	return t
}

func runMenu(e *election.Election, logPath string, done chan<- struct{}) {
	defer close(done)
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Println()
		fmt.Println("(1) Vote")
		fmt.Println("(2) Lookup voter id")
		fmt.Println("(3) View current results")
		fmt.Println("(4) View logs")
		fmt.Println("(5) Exit")
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		choice, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			fmt.Println("Unrecognized option")
			continue
		}

		switch choice {
		case 1:
			handleVote(e, reader)
		case 2:
			handleLookup(e, reader)
		case 3:
			handleResults(e)
		case 4:
			handleLogs(e, logPath)
		case 5:
			return
		default:
			fmt.Println("Unrecognized option")
		}

		if e.IsElectionOver() {
			fmt.Println("Every voter on the roll has cast a vote. Exiting.")
			return
		}
	}
}

func handleVote(e *election.Election, reader *bufio.Reader) {
	fmt.Print("Please authenticate yourself by typing in your full name.\n> ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	name = strings.TrimSpace(name)

	matches := e.LookupVoterByName(name)
	var voterID string
	switch len(matches) {
	case 0:
		fmt.Printf("%s is not on the voter roll\n", name)
		return
	case 1:
		voterID = matches[0].ID
	default:
		fmt.Printf("Multiple matches found for %s. Please enter your voter id.\n> ", name)
		id, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		id = strings.TrimSpace(id)
		found := false
		for _, v := range matches {
			if v.ID == id {
				found = true
				break
			}
		}
		if !found {
			fmt.Println("Please look up your ID and try again.")
			return
		}
		voterID = id
	}

	ticket, err := e.IssueTicket(voterID)
	if err != nil {
		fmt.Printf("Could not issue a ballot claim ticket: %v\n", err)
		return
	}

	template := e.Ballot()
	selections := ledger.BallotSelection{}
	for _, item := range template.Items() {
		fmt.Printf("%s (%s):\n", item.Position, item.Description)
		for i, choice := range item.Choices {
			fmt.Printf("  (%d) %s\n", i, choice)
		}
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		idx, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			continue
		}
		selections[item.Position] = []int{idx}
	}

	if err := e.CastVote(ticket, selections); err != nil {
		fmt.Printf("Vote was not accepted: %v\n", err)
		return
	}
	fmt.Println("Thank you for voting.")
}

func handleLookup(e *election.Election, reader *bufio.Reader) {
	fmt.Print("Enter the full name to look up.\n> ")
	name, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	matches := e.LookupVoterByName(strings.TrimSpace(name))
	if len(matches) == 0 {
		fmt.Println("No matches found.")
		return
	}
	for _, v := range matches {
		fmt.Printf("%s: %s\n", v.Name, v.ID)
	}
}

func handleResults(e *election.Election) {
	fmt.Println("Displaying results from the blockchain:")
	state, err := e.QueryResults()
	if err != nil {
		fmt.Println("Blocks are not in sync. please wait until next consensus round.")
		return
	}
	for position, tally := range state.Tally {
		fmt.Printf("%s:\n", position)
		for candidate, count := range tally {
			fmt.Printf("  %s: %d\n", candidate, count)
		}
	}
}

func handleLogs(e *election.Election, logPath string) {
	fmt.Println("Displaying max 30 lines")
	lines, err := e.TailLog(logPath)
	if err != nil {
		fmt.Printf("could not read logs: %v\n", err)
		return
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

// runSimulation casts a scripted vote for every voter on the roll, split
// evenly across the ballot choices, mirroring the original driver's
// Simulation subclass.
func runSimulation(e *election.Election) {
	template := e.Ballot()
	items := template.Items()
	for i, v := range e.VoterRoll() {
		ticket, err := e.IssueTicket(v.ID)
		if err != nil {
			log.Printf("[simulate] issue ticket for %s: %v", v.ID, err)
			continue
		}
		selections := ledger.BallotSelection{}
		for _, item := range items {
			selections[item.Position] = []int{i % len(item.Choices)}
		}
		if err := e.CastVote(ticket, selections); err != nil {
			log.Printf("[simulate] cast vote for %s: %v", v.ID, err)
		}
	}
}
