package sqlinline

const QCreateSceneJobs = `--sql 3c1e6f0a-5b7d-4c2e-9f41-7a0d2b8e6c15
create table if not exists scene_jobs (
    id uuid primary key,
    status text not null,
    current_scene integer not null default 0,
    total_scenes integer not null default 0,
    scenes jsonb not null default '[]'::jsonb,
    images jsonb not null default '[]'::jsonb,
    error text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QInsertSceneJob = `--sql 9d2f4b61-0e8a-4f37-b5c2-1e6a7d3f9b80
insert into scene_jobs (id, status, current_scene, total_scenes, scenes, images, error, created_at, updated_at)
values ($1::uuid, $2::text, $3::int, $4::int, $5::jsonb, $6::jsonb, $7::text, $8::timestamptz, $9::timestamptz);
`

const QSelectSceneJob = `--sql 5a7c0e38-2b94-4d16-8e5f-c3b1a9d7e042
select id::text, status, current_scene, total_scenes, scenes, images, error, created_at, updated_at
from scene_jobs
where id = $1::uuid;
`

const QUpdateSceneJob = `--sql e4b81f27-6c3a-4a95-9d0e-8f2c5b7a1d63
update scene_jobs
set status = $2::text,
    current_scene = $3::int,
    total_scenes = $4::int,
    scenes = $5::jsonb,
    images = $6::jsonb,
    error = $7::text,
    updated_at = $8::timestamptz
where id = $1::uuid;
`
