package sqlinline

const QEnsureJobSchema = `--sql 7afa6f10-f229-412f-8db4-c23a61717086
create table if not exists cartoon_jobs (
  seq bigserial not null,
  id text primary key,
  photo_ref text not null,
  template_ref text not null default '',
  result_ref text not null default '',
  status text not null check (status in ('pending', 'processing', 'completed', 'failed')),
  face_confidence double precision,
  error_message text not null default '',
  created_at timestamptz not null,
  updated_at timestamptz not null
);
create index if not exists idx_cartoon_jobs_created on cartoon_jobs (created_at desc, seq desc);
create index if not exists idx_cartoon_jobs_processing on cartoon_jobs (status) where status = 'processing';
`

const QInsertJob = `--sql 78fca419-2bc6-49fb-ac6c-aa9ddda8963f
insert into cartoon_jobs(
  id, photo_ref, template_ref, result_ref, status, face_confidence, error_message, created_at, updated_at
)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6, $7::text, $8::timestamptz, $9::timestamptz);
`

const QSelectJobByID = `--sql ac746f73-2702-4082-8e1f-6a197d88f4c0
select id, photo_ref, template_ref, result_ref, status, face_confidence, error_message, created_at, updated_at
from cartoon_jobs
where id = $1::text;
`

const QListJobs = `--sql b32b2c61-5daa-4297-9539-c14ba0d330d9
select id, photo_ref, template_ref, result_ref, status, face_confidence, error_message, created_at, updated_at
from cartoon_jobs
order by created_at desc, seq desc;
`

const QClaimPendingJob = `--sql 84b109f8-28da-4f24-900f-682d996734a7
update cartoon_jobs
set status = 'processing',
    updated_at = $2::timestamptz
where id = $1::text and status = 'pending'
returning id, photo_ref, template_ref, result_ref, status, face_confidence, error_message, created_at, updated_at;
`

const QCompleteJob = `--sql de0d341a-0edc-422f-97a2-57e6e6bbcb22
update cartoon_jobs
set status = 'completed',
    result_ref = $2::text,
    face_confidence = $3::double precision,
    error_message = '',
    updated_at = $4::timestamptz
where id = $1::text and status = 'processing';
`

const QFailJob = `--sql 62225941-4e37-4ddf-9592-803dfdb89a87
update cartoon_jobs
set status = 'failed',
    error_message = $2::text,
    updated_at = $3::timestamptz
where id = $1::text and status = 'processing';
`

const QFailProcessingJobs = `--sql 6d8d8cfd-dacb-4b52-addc-0c1f67073d14
update cartoon_jobs
set status = 'failed',
    error_message = $1::text,
    updated_at = $2::timestamptz
where status = 'processing';
`

const QSelectJobStatus = `--sql 438a39bd-eb97-433e-ac0f-c05582f3abae
select status from cartoon_jobs where id = $1::text;
`
