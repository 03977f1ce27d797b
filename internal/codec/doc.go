/*
Package codec provides the reversible, URL-safe transforms used to obfuscate a
destination address inside a route path.

# Variants

  - Plain: identity transform, escaped for the wire.
  - StreamXor: XORs every f-th byte with a key byte, shifting by one.
  - SymmetricEncrypt: AES-256-GCM with a key derived from a passphrase.

Every variant shares the same wire alphabet: [-_~:0-9A-Za-z]. Any other byte is
written as '$' followed by two lowercase hex digits, so a space becomes "$20"
and a literal dollar sign becomes "$24".

# Usage

	key, _ := codec.GenerateKey(codec.StreamXor)
	c, err := codec.New(codec.StreamXor, key)
	if err != nil {
		return err
	}

	encoded, _ := c.Encode("http://example.com/a.js")
	decoded, err := c.Decode(encoded)

A Codec is immutable after construction and safe for concurrent use.
*/
package codec
