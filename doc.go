// Package neochat implements a NeoChat node: a long-lived identity, the
// encrypted local state that holds it, and the transports that carry sealed
// messages between peers.
//
// Every message is sealed for its recipient with an ephemeral X25519
// exchange and signed by the sender's Ed25519 key before it reaches a
// transport. The same sealed frame can travel over an HTTP relay, the
// store-and-forward mesh, a DNS tunnel, SMS, or an application-supplied
// direct link; each chat selects one.
//
// # Getting Started
//
//	options := neochat.NewOptions()
//	options.StoragePath = "/var/lib/neochat/state.dat"
//
//	node, err := neochat.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	if _, err := node.Register("alice"); err != nil {
//	    log.Fatal(err)
//	}
//
//	chat, err := node.CreateChat(peerID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node.SetContactEncryptionKey(peerID, peerEncryptionKey)
//	node.SendMessage(ctx, chat.ID, "hello")
//
// # State
//
// State is written after every mutation to an AES-GCM encrypted file whose
// key lives beside it. When the file exists but cannot be read the node
// starts over with a new identity; LoadResult reports which case occurred
// and Options.OnStateReset is called.
//
// # Receiving
//
// Inbound frames arrive through ReceiveEnvelope, or are pulled by
// PollRelay, PollDNS and SyncMesh. Frames whose signature or ciphertext do
// not verify are rejected with the crypto package's sentinel errors.
package neochat
