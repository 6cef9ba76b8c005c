package sqlinline

const QCreateGenerationsTable = `--sql d592d684-bfd2-48a9-81b8-fc0d32de9314
create table if not exists generations (
    id text primary key,
    owner_id text not null,
    mode text not null,
    prompt text not null,
    settings jsonb not null default '{}'::jsonb,
    result jsonb not null default '{}'::jsonb,
    reference_image_count integer not null default 0,
    created_at timestamptz not null default now()
);
`

const QCreateGenerationsOwnerIndex = `--sql a7633442-c30d-4ec0-9d64-4a7fcaf23dd0
create index if not exists generations_owner_created_idx
    on generations (owner_id, created_at desc, id desc);
`

// QInsertGeneration stores a created_at strictly later than the owner's newest
// record so that recency ordering follows insertion order.
const QInsertGeneration = `--sql b6579c29-322d-4a6e-89c7-52563738d9ad
with latest as (
    select max(created_at) as created_at
    from generations
    where owner_id = $2::text
)
insert into generations (id, owner_id, mode, prompt, settings, result, reference_image_count, created_at)
select $1::text, $2::text, $3::text, $4::text, $5::jsonb, $6::jsonb, $7::integer,
       greatest($8::timestamptz, coalesce((select created_at from latest) + interval '1 microsecond', $8::timestamptz))
returning created_at;
`

const QSelectGeneration = `--sql bed057f2-af4e-46a4-a426-8e42e7a96f0e
select id, owner_id, mode, prompt, settings, result, reference_image_count, created_at
from generations
where id = $1::text
  and owner_id = $2::text;
`

const QListGenerations = `--sql 031a93c7-007e-4679-a206-c414057d0a87
select id, owner_id, mode, prompt, settings, result, reference_image_count, created_at
from generations
where owner_id = $1::text
  and ($2::timestamptz is null or (created_at, id) < ($2::timestamptz, $3::text))
order by created_at desc, id desc
limit $4::integer;
`

const QDeleteGeneration = `--sql 8b3a59ef-fcda-40d0-99cc-72dc5c40b3a8
delete from generations
where id = $1::text
  and owner_id = $2::text;
`
