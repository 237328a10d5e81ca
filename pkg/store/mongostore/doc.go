// Package mongostore implements vault.SecretStore on MongoDB.
//
// Each entry is one document keyed by the string form of its ID. Key
// rotation writes go through UpdateAll, which runs in a multi-document
// transaction, so the server must be a replica set (a single-node replica
// set is enough for development).
//
//	client, err := mongostore.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Disconnect(context.Background())
//	secrets := mongostore.NewSecrets(client, cfg)
package mongostore
