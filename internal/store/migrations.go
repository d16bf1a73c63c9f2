package store

const migrationUsers = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	name TEXT,
	settings JSON NOT NULL DEFAULT '{}',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

const migrationLists = `
CREATE TABLE IF NOT EXISTS lists (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

const migrationSubscribers = `
CREATE TABLE IF NOT EXISTS subscribers (
	id TEXT PRIMARY KEY,
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	email TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	metadata JSON,
	status TEXT NOT NULL DEFAULT 'active',
	position INTEGER NOT NULL,
	added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(list_id, email COLLATE NOCASE)
)`

const migrationTemplates = `
CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	subject TEXT NOT NULL,
	html TEXT,
	text TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

const migrationCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	list_id TEXT NOT NULL REFERENCES lists(id),
	template_id TEXT NOT NULL REFERENCES templates(id),
	schedule_date TIMESTAMP NOT NULL,
	send_limit INTEGER NOT NULL DEFAULT 50,
	status TEXT NOT NULL DEFAULT 'draft',
	total_recipients INTEGER NOT NULL DEFAULT 0,
	sent_count INTEGER NOT NULL DEFAULT 0,
	bounce_count INTEGER NOT NULL DEFAULT 0,
	open_count INTEGER NOT NULL DEFAULT 0,
	click_count INTEGER NOT NULL DEFAULT 0,
	unsubscribe_count INTEGER NOT NULL DEFAULT 0,
	last_sent_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// campaign_recipients is the recipient snapshot taken when a campaign
// transitions to sending. Batch slicing reads this table, not the live
// list, so list edits mid-send cannot skip or repeat recipients.
const migrationCampaignRecipients = `
CREATE TABLE IF NOT EXISTS campaign_recipients (
	campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	subscriber_id TEXT NOT NULL,
	email TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	list_id TEXT NOT NULL,
	PRIMARY KEY (campaign_id, position)
)`
