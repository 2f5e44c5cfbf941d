package aggregator

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/subki/federation/src/audit"
	"github.com/subki/federation/src/config"
	"github.com/subki/federation/src/consensus"
	"github.com/subki/federation/src/crypto/keys"
	"github.com/subki/federation/src/feedback"
	"github.com/subki/federation/src/ledger"
	"github.com/subki/federation/src/nodes"
	"github.com/subki/federation/src/proposal"
	"github.com/subki/federation/src/proxy"
	"github.com/subki/federation/src/store"
	"github.com/subki/federation/src/trust"
)

// Aggregator is the federation's single authority: it owns the trust map, the
// ledger write path, and the feedback queue. One instance per deployment; the
// transport layer in front of it may fan requests in concurrently, the
// stateful resources each serialize internally.
type Aggregator struct {
	Config    *config.Config
	Registry  nodes.Registry
	ActiveSet *nodes.ActiveSet
	Trust     *trust.Store
	Ledger    *ledger.Ledger
	Archive   *proposal.Archive
	Merger    *consensus.Merger
	Queue     *feedback.Queue
	Audit     *audit.Log
	Learner   proxy.LearnerProxy

	successes     map[string]int
	successesLock sync.Mutex

	eventStore store.Store

	stores   []store.Store
	draining chan struct{}
	logger   *logrus.Entry
}

// NewAggregator ...
func NewAggregator(conf *config.Config, registry nodes.Registry, learner proxy.LearnerProxy) *Aggregator {
	return &Aggregator{
		Config:    conf,
		Registry:  registry,
		Learner:   learner,
		successes: make(map[string]int),
		logger:    conf.Logger(),
	}
}

// Init initializes the aggregator: private key, stores, trust map, audit log,
// merger and feedback queue, in dependency order.
func (a *Aggregator) Init() error {
	a.ActiveSet = nodes.NewActiveSet(a.Config.ActiveSet)

	if err := a.initKey(); err != nil {
		return err
	}

	if err := a.initStores(); err != nil {
		return err
	}

	if err := a.initTrust(); err != nil {
		return err
	}

	a.initQueue()

	a.logger.WithFields(logrus.Fields{
		"datadir":    a.Config.DataDir,
		"store":      a.Config.Store,
		"active_set": len(a.Config.ActiveSet),
		"blocks":     a.Ledger.Count(),
	}).Debug("Aggregator initialized")

	return nil
}

func (a *Aggregator) initKey() error {
	if a.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(a.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			a.logger.Warn("Cannot read private key from file", err)

			_, privKey, err = keys.GenerateKey()
			if err != nil {
				a.logger.Error("Cannot generate a new private key", err)
				return err
			}

			if err := simpleKeyfile.WriteKey(privKey); err != nil {
				a.logger.Error("Cannot write private key to file", err)
				return err
			}

			a.logger.Debug("Generated a new private key")
		}

		a.Config.Key = privKey
	}

	return nil
}

func (a *Aggregator) initStores() error {
	var blocks, proposals, events store.Store

	if a.Config.Store {
		a.logger.WithField("path", a.Config.DatabaseDir).Debug("Opening badger database")

		badgerStore, err := store.NewBadgerStore(a.Config.DatabaseDir)
		if err != nil {
			return err
		}

		// Records are namespaced by key prefix, so one database carries the
		// ledger, the proposal archive and the event archive.
		blocks, proposals, events = badgerStore, badgerStore, badgerStore

		a.stores = append(a.stores, badgerStore)
	} else {
		for name, target := range map[string]*store.Store{
			"blocks":    &blocks,
			"proposals": &proposals,
			"events":    &events,
		} {
			fileStore, err := store.NewFileStore(filepath.Join(a.Config.DataDir, name))
			if err != nil {
				return err
			}
			*target = fileStore
			a.stores = append(a.stores, fileStore)
		}
	}

	a.Audit = audit.NewLog(a.Config.AuditFile(), a.logger)

	l, err := ledger.NewLedger(blocks, a.logger)
	if err != nil {
		return err
	}
	a.Ledger = l

	a.Archive = proposal.NewArchive(proposals, a.logger)

	a.Merger = consensus.NewMerger(a.Ledger, a.Config.Key, a.Audit, a.logger)

	a.eventStore = events

	return nil
}

func (a *Aggregator) initTrust() error {
	trustStore, err := trust.NewStore(a.Config.TrustFile(), a.logger)
	if err != nil {
		return err
	}

	a.Trust = trustStore

	return nil
}

func (a *Aggregator) initQueue() {
	a.Queue = feedback.NewQueue(
		a.eventStore,
		a.Config.ErrorLogFile(),
		a.Learner,
		a,
		a,
		a.logger,
	)
}

// StartDrain launches the periodic feedback-queue drain. It is a no-op when
// the configured interval is zero.
func (a *Aggregator) StartDrain() {
	if a.Config.DrainInterval == 0 || a.draining != nil {
		return
	}

	a.draining = make(chan struct{})

	go func() {
		ticker := time.NewTicker(a.Config.DrainInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := a.Queue.Process(); n > 0 {
					a.logger.WithField("count", n).Debug("Drained feedback queue")
				}
			case <-a.draining:
				return
			}
		}
	}()
}

// Shutdown stops the drain loop and closes the underlying stores.
func (a *Aggregator) Shutdown() {
	if a.draining != nil {
		close(a.draining)
		a.draining = nil
	}

	for _, s := range a.stores {
		if err := s.Close(); err != nil {
			a.logger.WithError(err).Error("Closing store")
		}
	}
}
