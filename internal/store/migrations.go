package store

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    niche       TEXT NOT NULL,
    platforms   TEXT NOT NULL DEFAULT '[]',
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);

CREATE TABLE IF NOT EXISTS videos (
    id                TEXT PRIMARY KEY,
    job_id            TEXT NOT NULL REFERENCES jobs(id),
    platform          TEXT NOT NULL,
    platform_video_id TEXT NOT NULL DEFAULT '',
    url               TEXT NOT NULL UNIQUE,
    title             TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    author            TEXT NOT NULL DEFAULT '',
    views             INTEGER NOT NULL DEFAULT 0,
    likes             INTEGER NOT NULL DEFAULT 0,
    comments          INTEGER NOT NULL DEFAULT 0,
    duration_seconds  REAL NOT NULL DEFAULT 0,
    upload_date       DATETIME NOT NULL,
    trending_score    REAL NOT NULL DEFAULT 0,
    metadata          TEXT NOT NULL DEFAULT '{}',
    discovered_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_videos_job ON videos(job_id);
CREATE INDEX IF NOT EXISTS idx_videos_platform_id ON videos(platform, platform_video_id);
CREATE INDEX IF NOT EXISTS idx_videos_score ON videos(trending_score);

CREATE TABLE IF NOT EXISTS analyses (
    content_id             TEXT PRIMARY KEY REFERENCES videos(id),
    model                  TEXT NOT NULL DEFAULT '',
    quality_score          REAL NOT NULL DEFAULT 0,
    relevance_score        REAL NOT NULL DEFAULT 0,
    virality_score         REAL NOT NULL DEFAULT 0,
    recommended            BOOLEAN NOT NULL DEFAULT 0,
    caption_suggestion     TEXT NOT NULL DEFAULT '',
    description_suggestion TEXT NOT NULL DEFAULT '',
    rejection_reasons      TEXT NOT NULL DEFAULT '[]',
    visual_analysis        TEXT NOT NULL DEFAULT '{}',
    analyzed_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS downloads (
    content_id       TEXT PRIMARY KEY REFERENCES videos(id),
    local_path       TEXT NOT NULL,
    duration_seconds REAL NOT NULL DEFAULT 0,
    file_size_bytes  INTEGER NOT NULL DEFAULT 0,
    format           TEXT NOT NULL DEFAULT '',
    downloaded_at    DATETIME NOT NULL
);
`
