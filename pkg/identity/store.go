package identity

import (
	"io/ioutil"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotInStore = errors.New("identity not in store")
)

type storeFile struct {
	Identities []*Identity `yaml:"identities"`
}

// Store is a YAML file keystore for mined identities. Records carry private
// key material so the file is kept at 0600.
type Store struct {
	path string
	ids  storeFile
	idx  map[string]*Identity

	mu sync.Mutex
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.read(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) read() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return errors.Wrap(err, "opening identity store for read")
	}
	defer f.Close()

	d, err := ioutil.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading identity store")
	}

	if err := yaml.Unmarshal(d, &s.ids); err != nil {
		return errors.Wrap(err, "unmarshalling identity store")
	}

	return s.buildIdx()
}

func (s *Store) buildIdx() error {
	//assumes locked s.mu

	s.idx = make(map[string]*Identity, len(s.ids.Identities))

	for _, id := range s.ids.Identities {
		if err := id.Validate(); err != nil {
			return errors.Wrapf(err, "stored identity %s", id.NodeID)
		}

		s.idx[id.NodeID] = id
	}

	return nil
}

func (s *Store) Add(id *Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.idx[id.NodeID]; ok {
		return nil
	}

	s.ids.Identities = append(s.ids.Identities, id)
	s.idx[id.NodeID] = id

	return s.write()
}

func (s *Store) write() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return errors.Wrap(err, "opening identity store for write")
	}
	defer f.Close()

	d, err := yaml.Marshal(&s.ids)
	if err != nil {
		return errors.Wrap(err, "marshalling identity store")
	}

	f.Truncate(0)
	_, err = f.Write(d)
	return err
}

func (s *Store) Find(nodeID string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.idx[nodeID]
	if !ok {
		return nil, ErrNotInStore
	}

	return id, nil
}

func (s *Store) List() []*Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]*Identity, 0, len(s.ids.Identities))
	ids = append(ids, s.ids.Identities...)

	return ids
}
