package postgres

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              UUID PRIMARY KEY,
	username        VARCHAR(255) UNIQUE NOT NULL,
	email           VARCHAR(255) NOT NULL DEFAULT '',
	full_name       VARCHAR(255) NOT NULL DEFAULT '',
	hashed_password VARCHAR(255) NOT NULL,
	status          VARCHAR(20) NOT NULL DEFAULT 'offline',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chats (
	id                 UUID PRIMARY KEY,
	chat_type          VARCHAR(20) NOT NULL,
	name               VARCHAR(255) NOT NULL DEFAULT '',
	description        VARCHAR(1024) NOT NULL DEFAULT '',
	is_encrypted       BOOLEAN NOT NULL DEFAULT FALSE,
	created_by         UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	pinned_message_ids TEXT[] NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id              UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	user_id              UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role                 VARCHAR(20) NOT NULL DEFAULT 'member',
	joined_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_read_message_id UUID,
	PRIMARY KEY (chat_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id            UUID PRIMARY KEY,
	chat_id       UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	sender_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_type  VARCHAR(20) NOT NULL DEFAULT 'text',
	content       TEXT NOT NULL DEFAULT '',
	reply_to_id   UUID,
	mentions      TEXT[] NOT NULL DEFAULT '{}',
	is_deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	is_pinned     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	edited_at     TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_id_created_at ON messages(chat_id, created_at DESC);

CREATE TABLE IF NOT EXISTS reactions (
	id            UUID PRIMARY KEY,
	message_id    UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	reaction_type VARCHAR(50) NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (message_id, user_id, reaction_type)
);
`
