package parser

const cpuinfoFixture = `Load: 6.42 / 6.12 / 5.98
CPU usage from 10023ms to 2ms ago (2024-01-10 10:00:00.000 to 2024-01-10 10:00:10.000):
  23% 4321/com.a.service: 18% user + 5% kernel / faults: 120 minor
  8.5% 5678/com.b: 6% user + 2.5% kernel
  4% 1234/system_server: 2% user + 2% kernel
87% TOTAL: 54% user + 29% kernel + 0% iowait + 3.1% irq + 0.8% softirq
`

const topFixture = `Tasks: 612 total,   1 running, 611 sleeping,   0 stopped,   0 zombie
  Mem:  7821164K total,  7431200K used,   389964K free,    46628K buffers
800%cpu  45%user   0%nice  30%sys 720%idle   0%iow   5%irq   0%sirq   0%host
  PID USER         PR  NI VIRT  RES  SHR S[%CPU] %MEM     TIME+ ARGS
 4321 u0_a210      10 -10  14G 220M 120M S 21.0   2.9   1:02.33 com.a.service
 4400 u0_a210      20   0  13G  80M  60M S  1.2   1.0   0:01.10 com.a:remote
 5678 u0_a211      10 -10  13G 150M  90M S  7.9   1.9   0:30.00 com.b
 9999 shell        20   0  11G 4.0M 3.0M R  0.3   0.0   0:00.01 sh -c top -n 1 -b
 1234 system       18  -2  15G 310M 200M S  3.8   4.0  99:10.20 system_server
`

const appMeminfoFixture = `Applications Memory Usage (in Kilobytes):
Uptime: 123456 Realtime: 123456

** MEMINFO in pid 4321 [com.a.service] **
                   Pss  Private  Private  SwapPss      Rss     Heap     Heap     Heap
                 Total    Dirty    Clean    Dirty    Total     Size    Alloc     Free
                ------   ------   ------   ------   ------   ------   ------   ------
  Native Heap    20480    20400        0        0    22000    30000    25000     5000
  Dalvik Heap    10240    10200        0        0    12000    16000    12000     4000
        TOTAL   153600    90000    30000        0   225280    46000    37000     9000

 App Summary
                       Pss(KB)                        Rss(KB)
                        ------                         ------
           Java Heap:    12288                          14000
         Native Heap:    20480                          22000
`

const procMeminfoFixture = `MemTotal:        7821164 kB
MemFree:          389964 kB
MemAvailable:    3145728 kB
Buffers:           46628 kB
Cached:          2621440 kB
`

const batteryFixture = `Current Battery Service state:
  AC powered: false
  USB powered: true
  status: 2
  health: 2
  present: true
  level: 85
  scale: 100
  voltage: 4213
  temperature: 285
  technology: Li-ion
`

const netDevFixture = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:   5000      50    0    0    0     0          0         0     5000      50    0    0    0     0       0          0
 wlan0: 1048576    900    0    0    0     0          0         0   524288     400    0    0    0     0       0          0
rmnet0:    2048      10    0    0    0     0          0         0     1024      10    0    0    0     0       0          0
`

const batterystatsAppFixture = `Statistics since last charge:
  Estimated power use (mAh):
    Capacity: 4000, Computed drain: 512, actual drain: 480-520
    Uid u0a210: 42.5 ( cpu=30.1 wifi=4.2 screen=8.2 ) Including smearing: 45.0
  Wake lock *job*/sync realtime count=12
  Alarm *walarm*:com.a.SYNC count=7
`

const framestatsFixture = `Applications Graphics Acceleration Info:
Total frames rendered: 240
Janky frames: 12 (5.00%)
99th percentile: 32ms

---PROFILEDATA---
Flags,IntendedVsync,Vsync,OldestInputEvent,NewestInputEvent,HandleInputStart,AnimationStart,PerformTraversalsStart,DrawStart,SyncQueued,SyncStart,IssueDrawCommandsStart,SwapBuffers,FrameCompleted,
0,1000000000,1000000000,0,0,0,0,0,0,0,0,0,0,1010000000,
0,1016000000,1016000000,0,0,0,0,0,0,0,0,0,0,1026000000,
0,1032000000,1032000000,0,0,0,0,0,0,0,0,0,0,1042000000,
0,1048000000,1048000000,0,0,0,0,0,0,0,0,0,0,1058000000,
0,1064000000,1064000000,0,0,0,0,0,0,0,0,0,0,1074000000,
0,1080000000,1080000000,0,0,0,0,0,0,0,0,0,0,1120000000,
1,1096000000,1096000000,0,0,0,0,0,0,0,0,0,0,1196000000,
---PROFILEDATA---
`

const netstatsDetailFixture = `UID stats:
  ident=[{type=WIFI, subType=COMBINED}] uid=10210 set=DEFAULT tag=0x0
    NetworkStatsHistory: bucketDuration=7200
      st=1700000000 rb=1000 rp=10 tb=500 tp=5 op=0
      st=1700007200 rb=3000 rp=30 tb=1500 tp=15 op=0
  ident=[{type=WIFI, subType=COMBINED}] uid=10211 set=DEFAULT tag=0x0
    NetworkStatsHistory: bucketDuration=7200
      st=1700000000 rb=99999 rp=99 tb=99999 tp=99 op=0
`
