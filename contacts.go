package neochat

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/crypto"
	"github.com/opd-ai/neochat/models"
)

// Contacts returns all contacts ordered by name.
func (n *Node) Contacts() []models.Contact {
	n.mu.Lock()
	contacts := make([]models.Contact, 0, len(n.contacts))
	for _, c := range n.contacts {
		contacts = append(contacts, c)
	}
	n.mu.Unlock()

	sortContacts(contacts)
	return contacts
}

// AddContact adds or replaces a contact.
func (n *Node) AddContact(pubkey, name string) error {
	return n.putContact(models.Contact{ID: pubkey, Name: name, Status: models.StatusOffline})
}

// AddContactWithPhone adds or replaces a contact reachable over SMS.
func (n *Node) AddContactWithPhone(pubkey, name, phone string) error {
	return n.putContact(models.Contact{ID: pubkey, Name: name, Status: models.StatusOffline, PhoneNumber: phone})
}

// SetContactEncryptionKey records a contact's key-agreement key, which is
// needed before messages to the contact can be encrypted. The pair is
// checked by parsing it as a peer identity.
func (n *Node) SetContactEncryptionKey(pubkey, encryptionPub string) error {
	if _, err := crypto.ParsePeerIdentity(pubkey, encryptionPub); err != nil {
		return err
	}

	n.mu.Lock()
	contact, ok := n.contacts[pubkey]
	if !ok {
		n.mu.Unlock()
		return ErrContactNotFound
	}
	contact.EncryptionPubkey = strings.ToUpper(strings.TrimSpace(encryptionPub))
	n.contacts[pubkey] = contact
	n.mu.Unlock()

	return n.persist()
}

// SearchUsers returns contacts whose name or ID contains query, ignoring case.
func (n *Node) SearchUsers(query string) []models.Contact {
	q := strings.ToLower(query)

	n.mu.Lock()
	var matches []models.Contact
	for _, c := range n.contacts {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.ID), q) {
			matches = append(matches, c)
		}
	}
	n.mu.Unlock()

	sortContacts(matches)
	return matches
}

// ConnectPeer records a connection to a peer address. Link setup itself
// belongs to the Direct channel supplied by the application.
func (n *Node) ConnectPeer(address string) {
	n.mu.Lock()
	n.networkStatus = models.NetworkConnected
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Node.ConnectPeer",
		"address":  address,
	}).Info("Peer connected")
}

// NetworkStatus returns the node's connectivity.
func (n *Node) NetworkStatus() models.NetworkStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.networkStatus
}

func (n *Node) putContact(contact models.Contact) error {
	n.mu.Lock()
	if prev, ok := n.contacts[contact.ID]; ok && contact.EncryptionPubkey == "" {
		contact.EncryptionPubkey = prev.EncryptionPubkey
	}
	n.contacts[contact.ID] = contact
	n.mu.Unlock()

	return n.persist()
}

func sortContacts(contacts []models.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].Name != contacts[j].Name {
			return contacts[i].Name < contacts[j].Name
		}
		return contacts[i].ID < contacts[j].ID
	})
}
