// Package sftp provides a storage.Backend implementation backed by an SFTP
// server, using github.com/pkg/sftp over golang.org/x/crypto/ssh.
//
//	store, err := sftp.Dial("nas:22", "/srv/music", &ssh.ClientConfig{
//	    User:            "music",
//	    Auth:            []ssh.AuthMethod{ssh.Password(pw)},
//	    HostKeyCallback: callback,
//	})
//	defer store.Close()
package sftp
